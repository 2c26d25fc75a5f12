package codec

import (
	"testing"
)

type benchChild struct {
	K string `json:"k"`
	V int64  `json:"v"`
}

type benchPayload struct {
	ID       uint64            `json:"id"`
	Title    string            `json:"title"`
	Score    float64           `json:"score"`
	Tags     []string          `json:"tags"`
	Attrs    map[string]string `json:"attrs"`
	Flags    []bool            `json:"flags"`
	Children []benchChild      `json:"children"`
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for b.Loop() {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal[T any](b *testing.B, c Codec, data []byte, dst *T) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	var v T
	b.ResetTimer()
	for b.Loop() {
		if err := c.Unmarshal(data, &v); err != nil {
			b.Fatal(err)
		}
	}
	if dst != nil {
		*dst = v
	}
}

func BenchmarkCodec_Marshal_Payload(b *testing.B) {
	payload := benchPayload{
		ID:    123456789,
		Title: "hello placer",
		Score: 0.12345,
		Tags:  []string{"a", "b", "c", "d", "e"},
		Attrs: map[string]string{
			"kind": "bench",
			"lang": "go",
		},
		Flags: []bool{true, false, true, true, false, false, true},
		Children: []benchChild{
			{K: "x", V: 1},
			{K: "y", V: 2},
			{K: "z", V: 3},
		},
	}

	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, payload) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, payload) })
}

func BenchmarkCodec_Unmarshal_Payload(b *testing.B) {
	payload := benchPayload{
		ID:    123456789,
		Title: "hello placer",
		Score: 0.12345,
		Tags:  []string{"a", "b", "c", "d", "e"},
		Attrs: map[string]string{
			"kind": "bench",
			"lang": "go",
		},
		Flags: []bool{true, false, true, true, false, false, true},
		Children: []benchChild{
			{K: "x", V: 1},
			{K: "y", V: 2},
			{K: "z", V: 3},
		},
	}

	jsonData := MustMarshal(JSON{}, payload)

	b.Run("stdlib", func(b *testing.B) {
		var sink benchPayload
		benchmarkCodecUnmarshal(b, JSON{}, jsonData, &sink)
		_ = sink
	})
	b.Run("go-json", func(b *testing.B) {
		var sink benchPayload
		benchmarkCodecUnmarshal(b, GoJSON{}, jsonData, &sink)
		_ = sink
	})
}

// benchPlacementRecord mirrors the shape of a single jplace placement
// entry (sequence, branch, and per-site likelihood fields) without
// importing the jplace package itself, which imports this one.
type benchPlacementRecord struct {
	SequenceID    string    `json:"n"`
	BranchID      int       `json:"edge_num"`
	LogL          float64   `json:"likelihood"`
	LikelihoodW   float64   `json:"like_weight_ratio"`
	DistalLength  float64   `json:"distal_length"`
	PendantLength float64   `json:"pendant_length"`
	SiteValues    []float64 `json:"post_prob"`
}

func benchPlacementRecords() []benchPlacementRecord {
	return []benchPlacementRecord{
		{
			SequenceID:    "query-1",
			BranchID:      17,
			LogL:          -1382.4471,
			LikelihoodW:   0.812,
			DistalLength:  0.0132,
			PendantLength: 0.0041,
			SiteValues:    []float64{0.98, 0.01, 0.99, 0.5, 0.2, 0.77, 0.33, 0.61},
		},
		{
			SequenceID:    "query-1",
			BranchID:      22,
			LogL:          -1384.9091,
			LikelihoodW:   0.188,
			DistalLength:  0.0201,
			PendantLength: 0.0057,
			SiteValues:    []float64{0.51, 0.44, 0.62, 0.71, 0.09, 0.85, 0.13, 0.29},
		},
	}
}

func BenchmarkCodec_Marshal_Placements(b *testing.B) {
	records := benchPlacementRecords()

	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, records) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, records) })
}

func BenchmarkCodec_Unmarshal_Placements(b *testing.B) {
	records := benchPlacementRecords()
	jsonData := MustMarshal(JSON{}, records)

	b.Run("stdlib", func(b *testing.B) {
		var sink []benchPlacementRecord
		benchmarkCodecUnmarshal(b, JSON{}, jsonData, &sink)
		_ = sink
	})
	b.Run("go-json", func(b *testing.B) {
		var sink []benchPlacementRecord
		benchmarkCodecUnmarshal(b, GoJSON{}, jsonData, &sink)
		_ = sink
	})
}
