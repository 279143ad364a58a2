package eligibility

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/InhaCentury20/pass/internal/model"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// Default returns a fresh copy of the generic eligibility template.
func Default() model.EligibilityProfile {
	var p model.EligibilityProfile
	if err := yaml.Unmarshal(defaultProfileYAML, &p); err != nil {
		// the template is compiled in; a decode failure is a build defect
		panic("eligibility: embedded default profile: " + err.Error())
	}
	return p
}

// IsEmpty reports whether p carries no criteria at all.
func IsEmpty(p model.EligibilityProfile) bool {
	return p == model.EligibilityProfile{}
}
