package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/validation"
)

//go:embed default.yaml
var defaultScenario []byte

type fileCatalog struct {
	Name      string         `yaml:"name" validate:"required"`
	Route     fileRoute      `yaml:"route"`
	Offsets   map[string]int `yaml:"offsets"`
	Timelines []fileTimeline `yaml:"timelines" validate:"required,min=1,dive"`
}

type fileRoute struct {
	Anchor int   `yaml:"anchor" validate:"gte=0"`
	Length int   `yaml:"length" validate:"gt=0"`
	Gates  []int `yaml:"gates" validate:"dive,gte=0"`
}

type fileTimeline struct {
	ID         string          `yaml:"id" validate:"required"`
	Name       string          `yaml:"name"`
	JumpTypes  []string        `yaml:"jump_types"`
	Procedures []fileProcedure `yaml:"procedures" validate:"required,min=1,dive"`
}

type fileProcedure struct {
	ID              string  `yaml:"id" validate:"required"`
	Step            string  `yaml:"step" validate:"required"`
	Condition       string  `yaml:"condition" validate:"required"`
	Duration        string  `yaml:"duration"`
	Altitude        float64 `yaml:"altitude" validate:"gte=0"`
	Item            string  `yaml:"item"`
	MilestoneOffset *int    `yaml:"milestone_offset"`
	Reload          bool    `yaml:"reload"`
	Failure         string  `yaml:"failure" validate:"omitempty,oneof=time_limit"`
	TimeLimit       string  `yaml:"time_limit"`
	Evaluation      string  `yaml:"evaluation"`
	Weight          float64 `yaml:"weight" validate:"gte=0"`
}

// Default returns the built-in scenario.
func Default() (*Static, error) {
	return Load(bytes.NewReader(defaultScenario))
}

// LoadFile reads a YAML scenario from disk.
func LoadFile(path string) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a YAML scenario.
func Load(r io.Reader) (*Static, error) {
	var fc fileCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validation.New("yaml").Struct(fc); err != nil {
		return nil, err
	}
	return fc.build()
}

func (fc fileCatalog) build() (*Static, error) {
	r := model.Route{Anchor: fc.Route.Anchor, Length: fc.Route.Length, Gates: slices.Clone(fc.Route.Gates)}
	if r.Anchor >= r.Length {
		return nil, fmt.Errorf("anchor %d outside route of length %d: %w", r.Anchor, r.Length, ErrInvalidRoute)
	}
	for _, g := range r.Gates {
		if g >= r.Length {
			return nil, fmt.Errorf("gate %d outside route of length %d: %w", g, r.Length, ErrInvalidRoute)
		}
	}

	seen := map[string]bool{}
	timelines := make([]model.Timeline, 0, len(fc.Timelines))
	procs := make(map[string][]model.Procedure, len(fc.Timelines))
	for _, ft := range fc.Timelines {
		if seen[ft.ID] {
			return nil, fmt.Errorf("timeline %q: %w", ft.ID, ErrDuplicateID)
		}
		seen[ft.ID] = true
		name := ft.Name
		if name == "" {
			name = ft.ID
		}
		timelines = append(timelines, model.Timeline{ID: ft.ID, Name: name, JumpTypes: ft.JumpTypes})
		for _, fp := range ft.Procedures {
			if seen[fp.ID] {
				return nil, fmt.Errorf("procedure %q: %w", fp.ID, ErrDuplicateID)
			}
			seen[fp.ID] = true
			p, err := fp.procedure()
			if err != nil {
				return nil, fmt.Errorf("procedure %q: %w", fp.ID, err)
			}
			procs[ft.ID] = append(procs[ft.ID], p)
		}
	}
	return NewStatic(fc.Name, r, timelines, procs, WithOffsets(fc.Offsets)), nil
}

func (fp fileProcedure) procedure() (model.Procedure, error) {
	p := model.Procedure{
		ID:           fp.ID,
		StepName:     fp.Step,
		Condition:    model.ConditionKind(fp.Condition),
		Failure:      model.FailureKind(fp.Failure),
		EvaluationID: fp.Evaluation,
		Weight:       fp.Weight,
		Params: model.Params{
			Altitude:        fp.Altitude,
			Item:            fp.Item,
			MilestoneOffset: fp.MilestoneOffset,
			Reload:          fp.Reload,
		},
	}
	if !p.Condition.Valid() {
		return p, fmt.Errorf("unknown condition %q: %w", fp.Condition, ErrInvalidProcedure)
	}
	if p.EvaluationID == "" {
		p.EvaluationID = p.ID
	}
	var err error
	if p.Params.Duration, err = parseDuration(fp.Duration); err != nil {
		return p, err
	}
	if p.TimeLimit, err = parseDuration(fp.TimeLimit); err != nil {
		return p, err
	}
	switch {
	case p.Condition == model.ConditionTime && p.Params.Duration <= 0:
		return p, fmt.Errorf("time condition needs a duration: %w", ErrInvalidProcedure)
	case p.Condition == model.ConditionItem && p.Params.Item == "":
		return p, fmt.Errorf("item condition needs an item: %w", ErrInvalidProcedure)
	case p.Condition == model.ConditionPullCord && p.Params.Altitude <= 0:
		return p, fmt.Errorf("pull_cord condition needs an altitude: %w", ErrInvalidProcedure)
	case p.Failure == model.FailureTimeLimit && p.TimeLimit <= 0:
		return p, fmt.Errorf("time_limit failure needs a time_limit: %w", ErrInvalidProcedure)
	}
	return p, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, ErrInvalidProcedure)
	}
	return d, nil
}
