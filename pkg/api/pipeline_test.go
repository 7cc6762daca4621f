package api

import (
	"strings"
	"testing"
)

func TestPipelineDefinitionValidate(t *testing.T) {
	valid := PipelineDefinition{
		Name: "etl",
		Steps: []StepDefinition{
			{Name: "extract"},
			{Name: "transform", DependsOn: []string{"extract"}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate failed on valid definition: %v", err)
	}

	cases := []struct {
		name string
		def  PipelineDefinition
		want string
	}{
		{
			name: "missing name",
			def:  PipelineDefinition{Steps: []StepDefinition{{Name: "a"}}},
			want: "name is required",
		},
		{
			name: "no steps",
			def:  PipelineDefinition{Name: "etl"},
			want: "at least one step",
		},
		{
			name: "duplicate step",
			def: PipelineDefinition{Name: "etl", Steps: []StepDefinition{
				{Name: "a"}, {Name: "a"},
			}},
			want: "duplicate step name",
		},
		{
			name: "unknown dependency",
			def: PipelineDefinition{Name: "etl", Steps: []StepDefinition{
				{Name: "a", DependsOn: []string{"ghost"}},
			}},
			want: "unknown step",
		},
		{
			name: "dependency on later step",
			def: PipelineDefinition{Name: "etl", Steps: []StepDefinition{
				{Name: "a", DependsOn: []string{"b"}}, {Name: "b"},
			}},
			want: "does not precede",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if err == nil {
				t.Fatalf("Validate accepted invalid definition")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestStepConfigAccessors(t *testing.T) {
	cfg := StepConfig{
		"input":   "/data/weather.json",
		"workers": 4,
		"big":     int64(7),
	}

	if got := cfg.String("input", "x"); got != "/data/weather.json" {
		t.Fatalf("String = %q", got)
	}
	if got := cfg.String("missing", "fallback"); got != "fallback" {
		t.Fatalf("String default = %q", got)
	}
	if got := cfg.Int("workers", 0); got != 4 {
		t.Fatalf("Int = %d", got)
	}
	if got := cfg.Int("big", 0); got != 7 {
		t.Fatalf("Int from int64 = %d", got)
	}
	if got := cfg.Int("input", 9); got != 9 {
		t.Fatalf("Int on non-int = %d", got)
	}
}
