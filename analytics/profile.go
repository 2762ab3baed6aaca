package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"csi-motion-monitor/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmptyCalibration   = errors.New("calibration sequence is empty")
	ErrProfileUnavailable = errors.New("reference profile unavailable")
)

const (
	LabelStanding = "standing"
	LabelSitting  = "sitting"
)

// ReferenceProfile summarises a calibration capture of one physical state.
type ReferenceProfile struct {
	Label          string
	MeanAmplitude  *mat.Dense
	BaselineEnergy float64
	Frames         int
}

// BuildProfile computes the per-cell mean amplitude of the calibration
// frames and the summed squared deviation of every frame from that mean.
func BuildProfile(label string, frames []models.CSIFrame) (*ReferenceProfile, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%s: %w", label, ErrEmptyCalibration)
	}

	r, c := frames[0].Amplitude.Dims()
	mean := mat.NewDense(r, c, nil)
	for i, f := range frames {
		if !f.SameShape(frames[0]) {
			return nil, fmt.Errorf("%s: calibration frame %d: %w", label, i, ErrShapeMismatch)
		}
		mean.Add(mean, f.Amplitude)
	}
	mean.Scale(1/float64(len(frames)), mean)

	profile := &ReferenceProfile{
		Label:         label,
		MeanAmplitude: mean,
		Frames:        len(frames),
	}
	for _, f := range frames {
		profile.BaselineEnergy += squaredError(f.Amplitude, mean)
	}
	return profile, nil
}

// ErrorAgainst is the squared error of an amplitude matrix against the
// profile mean, on the same scale as BaselineEnergy.
func (p *ReferenceProfile) ErrorAgainst(amplitude mat.Matrix) (float64, error) {
	r1, c1 := p.MeanAmplitude.Dims()
	r2, c2 := amplitude.Dims()
	if r1 != r2 || c1 != c2 {
		return 0, fmt.Errorf("%s profile is %dx%d, frame is %dx%d: %w",
			p.Label, r1, c1, r2, c2, ErrShapeMismatch)
	}
	return squaredError(amplitude, p.MeanAmplitude), nil
}

func squaredError(a, b mat.Matrix) float64 {
	var diff mat.Dense
	diff.Sub(a, b)
	diff.MulElem(&diff, &diff)
	return mat.Sum(&diff)
}

// CalibrationSource supplies the frames recorded for a known state.
type CalibrationSource interface {
	Frames(ctx context.Context) ([]models.CSIFrame, error)
}

// CalibrationFunc adapts a function to CalibrationSource.
type CalibrationFunc func(ctx context.Context) ([]models.CSIFrame, error)

func (f CalibrationFunc) Frames(ctx context.Context) ([]models.CSIFrame, error) {
	return f(ctx)
}

// ProfileStore keeps named reference profiles. Profiles are loaded either
// explicitly with Load or lazily on first Get. Concurrent lazy requests for
// the same label share a single build; a Load always builds from its own
// source and a lazy build never overwrites a profile installed by a Load
// that started after it.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*ReferenceProfile
	sources  map[string]CalibrationSource
	versions map[string]uint64
	loadMu   map[string]*sync.Mutex
	group    singleflight.Group
	logger   *zap.Logger
}

func NewProfileStore(logger *zap.Logger) *ProfileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileStore{
		profiles: make(map[string]*ReferenceProfile),
		sources:  make(map[string]CalibrationSource),
		versions: make(map[string]uint64),
		loadMu:   make(map[string]*sync.Mutex),
		logger:   logger,
	}
}

// Register records where the calibration frames for label come from.
func (ps *ProfileStore) Register(label string, source CalibrationSource) {
	ps.mu.Lock()
	ps.sources[label] = source
	ps.mu.Unlock()
}

// Load builds the profile for label from source and installs it,
// replacing any previous profile atomically. Loads of the same label run
// one at a time; the last one to finish wins.
func (ps *ProfileStore) Load(ctx context.Context, label string, source CalibrationSource) (*ReferenceProfile, error) {
	lock := ps.labelLock(label)
	lock.Lock()
	defer lock.Unlock()

	ps.mu.Lock()
	ps.sources[label] = source
	ps.versions[label]++
	version := ps.versions[label]
	ps.mu.Unlock()

	profile, err := ps.buildFrom(ctx, label, source)
	if err != nil {
		return nil, err
	}
	ps.install(profile, version)
	return profile, nil
}

// Get returns the profile for label, building it from the registered
// source if it has not been built yet.
func (ps *ProfileStore) Get(ctx context.Context, label string) (*ReferenceProfile, error) {
	if p, ok := ps.Lookup(label); ok {
		return p, nil
	}

	v, err, _ := ps.group.Do(label, func() (interface{}, error) {
		if p, ok := ps.Lookup(label); ok {
			return p, nil
		}

		ps.mu.RLock()
		source, ok := ps.sources[label]
		version := ps.versions[label]
		ps.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%s: no calibration source: %w", label, ErrProfileUnavailable)
		}

		profile, err := ps.buildFrom(ctx, label, source)
		if err != nil {
			return nil, err
		}
		if installed, ok := ps.install(profile, version); ok {
			return installed, nil
		}
		// A Load replaced the source while this build ran.
		if current, ok := ps.Lookup(label); ok {
			return current, nil
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReferenceProfile), nil
}

// Lookup returns an already built profile without triggering a build.
func (ps *ProfileStore) Lookup(label string) (*ReferenceProfile, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.profiles[label]
	return p, ok
}

// Put installs a prebuilt profile.
func (ps *ProfileStore) Put(profile *ReferenceProfile) {
	ps.mu.Lock()
	ps.profiles[profile.Label] = profile
	ps.mu.Unlock()
}

// Profiles lists the built profiles ordered by label.
func (ps *ProfileStore) Profiles() []*ReferenceProfile {
	ps.mu.RLock()
	out := make([]*ReferenceProfile, 0, len(ps.profiles))
	for _, p := range ps.profiles {
		out = append(out, p)
	}
	ps.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func (ps *ProfileStore) labelLock(label string) *sync.Mutex {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	lock, ok := ps.loadMu[label]
	if !ok {
		lock = &sync.Mutex{}
		ps.loadMu[label] = lock
	}
	return lock
}

// install stores profile unless the label's source changed since version
// was read.
func (ps *ProfileStore) install(profile *ReferenceProfile, version uint64) (*ReferenceProfile, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.versions[profile.Label] != version {
		return nil, false
	}
	ps.profiles[profile.Label] = profile
	return profile, true
}

func (ps *ProfileStore) buildFrom(ctx context.Context, label string, source CalibrationSource) (*ReferenceProfile, error) {
	frames, err := source.Frames(ctx)
	if err != nil {
		profileBuildsTotal.WithLabelValues(label, "unavailable").Inc()
		return nil, fmt.Errorf("%s: %w: %v", label, ErrProfileUnavailable, err)
	}

	profile, err := BuildProfile(label, frames)
	if err != nil {
		profileBuildsTotal.WithLabelValues(label, "invalid").Inc()
		return nil, err
	}

	profileBuildsTotal.WithLabelValues(label, "ok").Inc()
	ps.logger.Info("Reference profile built",
		zap.String("label", label),
		zap.Int("frames", profile.Frames),
		zap.Float64("baseline_energy", profile.BaselineEnergy))
	return profile, nil
}
