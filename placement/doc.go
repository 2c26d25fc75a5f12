// Package placement is the public facade over the evolutionary-placement
// engine: given a reference phylogeny, a reference alignment, and a
// substitution model, it assigns each query sequence in a stream to the
// reference branch maximising placement likelihood, and emits a jplace
// document of branch/pendant/distal/logl/LWR results.
//
// Usage follows a two-phase split. Build is everything that depends only
// on the reference dataset — parsing the tree and alignment, computing
// every reference CLV and per-branch pmatrix, precomputing prescoring
// lookup tables — and runs once:
//
//	eng, err := placement.New(referenceTreePath, msaPath, placement.JC69(1.0, 4)).
//		WithPrescoring(true).
//		WithThreads(8).
//		Build()
//
// Place is everything that depends on a query stream, and can be called
// repeatedly against the same built Engine:
//
//	doc, err := eng.Place(ctx, queryReader, "placer run-1")
//
// Package functions and the options they configure are grouped by concern
// in options.go, builder.go, model.go, logger.go, and metrics.go; the
// static build-time computation lives in build.go and geometry.go.
package placement
