package placement

import "github.com/evoplace/placer/internal/kernel"

// ModelDescriptor names a substitution model and its parameters, the third
// positional argument to New.
type ModelDescriptor struct {
	Kind           string  // "JC69" is the only kind the kernel currently implements
	Alpha          float64 // discrete-gamma shape; ignored when RateCategories <= 1
	RateCategories int     // discrete gamma rate categories; <=1 disables rate heterogeneity
}

// JC69 builds a ModelDescriptor for the Jukes-Cantor model with ncat
// discrete gamma rate categories of shape alpha.
func JC69(alpha float64, ncat int) ModelDescriptor {
	return ModelDescriptor{Kind: "JC69", Alpha: alpha, RateCategories: ncat}
}

func (d ModelDescriptor) build() (kernel.Model, error) {
	switch d.Kind {
	case "", "JC69":
		ncat := d.RateCategories
		if ncat < 1 {
			ncat = 1
		}
		return kernel.NewJC69(d.Alpha, ncat), nil
	default:
		return nil, &ConfigurationError{Msg: "unsupported model kind " + d.Kind + " (the numerical kernel ships only JC69)"}
	}
}
