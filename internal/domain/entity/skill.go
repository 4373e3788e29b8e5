package entity

import "strings"

// Skill is a named, pattern-matched strategy the agent has learned works
// for a class of tasks (§3, §4.D SkillLibrary).
type Skill struct {
	id              string
	name            string
	description     string
	recommendedCore CoreType
	patterns        []string
	steps           []string
	verified        bool
	useCount        uint32
	attemptCount    uint32
	successRate     float64

	// enabled/config are retained from the installed-skill-package notion
	// the teacher's SkillManager exposes; the SkillLibrary never reads
	// them but persistence round-trips them unchanged.
	enabled bool
	config  map[string]interface{}
}

// NewSkill creates a minimal Skill, kept for persistence-layer callers that
// only have id/name/description at construction time (e.g. GORM rehydration
// before the richer fields are loaded).
func NewSkill(id, name, description string) (*Skill, error) {
	if id == "" {
		return nil, ErrInvalidSkillID
	}
	if name == "" {
		return nil, ErrInvalidSkillName
	}

	return &Skill{
		id:              id,
		name:            name,
		description:     description,
		recommendedCore: CoreFreeform,
		patterns:        nil,
		steps:           nil,
		verified:        false,
		enabled:         true,
		config:          make(map[string]interface{}),
	}, nil
}

// NewSkillLibraryEntry creates a fully-populated Skill as stored by the
// SkillLibrary (§4.D): recommended core, match patterns, and the learned
// procedure steps.
func NewSkillLibraryEntry(id, name, description string, recommendedCore CoreType, patterns, steps []string) (*Skill, error) {
	s, err := NewSkill(id, name, description)
	if err != nil {
		return nil, err
	}
	s.recommendedCore = recommendedCore
	s.patterns = patterns
	s.steps = steps
	return s, nil
}

func (s *Skill) ID() string                 { return s.id }
func (s *Skill) Name() string               { return s.name }
func (s *Skill) Description() string        { return s.description }
func (s *Skill) RecommendedCore() CoreType   { return s.recommendedCore }
func (s *Skill) Patterns() []string          { return s.patterns }
func (s *Skill) Steps() []string             { return s.steps }
func (s *Skill) Verified() bool              { return s.verified }
func (s *Skill) UseCount() uint32            { return s.useCount }
func (s *Skill) AttemptCount() uint32        { return s.attemptCount }
func (s *Skill) SuccessRate() float64        { return s.successRate }

func (s *Skill) SetRecommendedCore(c CoreType) { s.recommendedCore = c }
func (s *Skill) SetPatterns(p []string)        { s.patterns = p }
func (s *Skill) SetSteps(steps []string)       { s.steps = steps }
func (s *Skill) MarkVerified()                 { s.verified = true }

// RecordAttempt updates use_count/attempt_count/success_rate after one use
// of this skill on a task, the running mean of outcome over attempt_count.
func (s *Skill) RecordAttempt(succeeded bool) {
	s.attemptCount++
	s.useCount++
	prevTotal := s.successRate * float64(s.attemptCount-1)
	if succeeded {
		prevTotal++
	}
	s.successRate = prevTotal / float64(s.attemptCount)
}

// Restore rehydrates the use/attempt/success-rate fields from persisted
// values, bypassing RecordAttempt's running-mean computation.
func (s *Skill) Restore(useCount, attemptCount uint32, successRate float64) {
	s.useCount = useCount
	s.attemptCount = attemptCount
	s.successRate = successRate
}

// MatchesTask reports whether any pattern is a case-insensitive substring of
// task (§3: "A Skill 'matches task T' iff any pattern is a substring of
// lowercased T").
func (s *Skill) MatchesTask(task string) bool {
	lower := strings.ToLower(task)
	for _, p := range s.patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// IsEnabled reports whether this skill is enabled (installed-skill-package
// concept retained from the teacher's SkillManager).
func (s *Skill) IsEnabled() bool {
	return s.enabled
}

// Enable enables the skill.
func (s *Skill) Enable() { s.enabled = true }

// Disable disables the skill.
func (s *Skill) Disable() { s.enabled = false }

// SetConfig sets one config key.
func (s *Skill) SetConfig(key string, value interface{}) {
	if s.config == nil {
		s.config = make(map[string]interface{})
	}
	s.config[key] = value
}

// GetConfig reads one config key.
func (s *Skill) GetConfig(key string) (interface{}, bool) {
	val, ok := s.config[key]
	return val, ok
}
