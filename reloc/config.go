// Package reloc implements the camera relocaliser: the candidate
// generator, inlier sampler, energy scorer, preemptive loop, and pose
// refiner (components 4.C-4.H) that turn a frame's merged scene-coordinate
// predictions into a single rigid-body pose.
package reloc

// Defaults for every recognised Config option.
const (
	DefaultMMax               = 1024
	DefaultB                  = 500
	DefaultK                  = 10
	DefaultKIn                = 50
	DefaultRMerge             = 0.005
	DefaultDMin               = 0.3
	DefaultTauT               = 0.05
	DefaultUseAllModes        = true
	DefaultCheckMinDistance   = true
	DefaultCheckRigidTransform = true
	DefaultLMMaxIters         = 10
	DefaultLMTolRel           = 1e-4
	DefaultRngSeed            = 42
	// DefaultRetryBudget is the per-slot candidate generation retry
	// budget (4.C), not itself part of the recognised Configuration
	// table but needed to bound generator work.
	DefaultRetryBudget = 1000
	// DefaultLMLambda0 is the initial Levenberg-Marquardt damping (4.G).
	DefaultLMLambda0 = 1e-3
)

// Config holds every recognised relocalisation option. Field names follow
// the configuration table. DefaultConfig() gives every documented default;
// Config{}.WithDefaults() gives the same except that UseAllModes,
// CheckMinDistance and CheckRigidTransform stay false.
type Config struct {
	MMax                int     `toml:"m_max"`
	B                   int     `toml:"b"`
	K                   int     `toml:"k"`
	KIn                 int     `toml:"k_in"`
	RMerge              float64 `toml:"r_merge"`
	DMin                float64 `toml:"d_min"`
	TauT                float64 `toml:"tau_t"`
	UseAllModes         bool    `toml:"use_all_modes"`
	CheckMinDistance    bool    `toml:"check_min_distance"`
	CheckRigidTransform bool    `toml:"check_rigid_transform"`
	// MaxRounds is a pointer so a caller-supplied 0 (spec.md's "budget set
	// to 0 rounds" scenario) is distinguishable from "not set": nil means
	// WithDefaults should compute defaultMaxRounds(MMax); a non-nil *0 is
	// honoured literally and forces Timeout before the first round runs.
	MaxRounds   *int    `toml:"max_rounds"`
	LMMaxIters  int     `toml:"lm_max_iters"`
	LMTolRel    float64 `toml:"lm_tol_rel"`
	RngSeed     int64   `toml:"rng_seed"`
	RetryBudget int     `toml:"retry_budget"`
}

// defaultMaxRounds returns ceil(log2(mMax)) + 1, the default halving-round
// budget: one round per halving of the candidate pool plus the initial
// unmasked inlier draw.
func defaultMaxRounds(mMax int) int {
	rounds := 1
	for n := mMax; n > 1; n = (n + 1) / 2 {
		rounds++
	}
	return rounds
}

// WithDefaults returns a copy of c with every zero-valued field replaced by
// its documented default. Booleans cannot be distinguished from "unset" by
// zero value alone in Go, so callers building a Config from scratch should
// start from DefaultConfig() rather than a partially zero Config when a
// default of `true` matters.
func (c Config) WithDefaults() Config {
	if c.MMax == 0 {
		c.MMax = DefaultMMax
	}
	if c.B == 0 {
		c.B = DefaultB
	}
	if c.K == 0 {
		c.K = DefaultK
	}
	if c.KIn == 0 {
		c.KIn = DefaultKIn
	}
	if c.RMerge == 0 {
		c.RMerge = DefaultRMerge
	}
	if c.DMin == 0 {
		c.DMin = DefaultDMin
	}
	if c.TauT == 0 {
		c.TauT = DefaultTauT
	}
	if c.MaxRounds == nil {
		c.MaxRounds = intPtr(defaultMaxRounds(c.MMax))
	}
	if c.LMMaxIters == 0 {
		c.LMMaxIters = DefaultLMMaxIters
	}
	if c.LMTolRel == 0 {
		c.LMTolRel = DefaultLMTolRel
	}
	if c.RngSeed == 0 {
		c.RngSeed = DefaultRngSeed
	}
	if c.RetryBudget == 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	return c
}

// DefaultConfig returns a Config with every option set to its documented
// default, including the booleans that default to true.
func DefaultConfig() Config {
	return Config{
		MMax:                DefaultMMax,
		B:                   DefaultB,
		K:                   DefaultK,
		KIn:                 DefaultKIn,
		RMerge:              DefaultRMerge,
		DMin:                DefaultDMin,
		TauT:                DefaultTauT,
		UseAllModes:         DefaultUseAllModes,
		CheckMinDistance:    DefaultCheckMinDistance,
		CheckRigidTransform: DefaultCheckRigidTransform,
		MaxRounds:           intPtr(defaultMaxRounds(DefaultMMax)),
		LMMaxIters:          DefaultLMMaxIters,
		LMTolRel:            DefaultLMTolRel,
		RngSeed:             DefaultRngSeed,
		RetryBudget:         DefaultRetryBudget,
	}
}

func intPtr(v int) *int { return &v }
