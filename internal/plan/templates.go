package plan

import "github.com/rockmrack/crownsafe/internal/capability"

// BuiltinTemplates covers the common safety-check flows. Deployments
// add their own under plan.template_dir.
var BuiltinTemplates = []Template{
	{
		ID:          "safety_check",
		Description: "Look up recall notices for a product by identifiers, falling back to name",
		Steps: []StepSpec{
			{
				ID:         "lookup",
				Capability: capability.QueryRecordsByIdentifiers,
				// Every query field is optional; chains end in a null
				// literal so a missing input never skips the step.
				Inputs: map[string]any{
					"identifiers": "{{inputs.identifiers or null}}",
					"name":        "{{inputs.name or null}}",
					"brand":       "{{inputs.brand or null}}",
				},
			},
		},
	},
	{
		ID:          "refresh_and_check",
		Description: "Pull fresh notices from every source, then run the lookup against the refreshed store",
		Steps: []StepSpec{
			{
				ID:         "refresh",
				Capability: capability.RunIngestionCycle,
			},
			{
				ID:         "lookup",
				Capability: capability.QueryRecordsByIdentifiers,
				DependsOn:  []string{"refresh"},
				Optional:   true,
				Inputs: map[string]any{
					"identifiers": "{{inputs.identifiers or null}}",
					"name":        "{{inputs.name or inputs.product or null}}",
					"brand":       "{{inputs.brand or null}}",
				},
			},
		},
	},
}
