package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurofab/z1cluster/cache"
	"github.com/neurofab/z1cluster/hal"
	"github.com/neurofab/z1cluster/neuron"
	"github.com/neurofab/z1cluster/spike"
	"github.com/neurofab/z1cluster/store"
	"github.com/neurofab/z1cluster/zerr"
)

func newTestEngine(t *testing.T, maxNeurons int, clock hal.Clock) (*Engine, *store.Store) {
	t.Helper()
	s := store.New(hal.NewSimPSRAM(hal.MinPSRAMSize))
	require.NoError(t, s.Init(0, maxNeurons))
	c := cache.New(s, 8)
	q := spike.New(16)
	return New(0, s, c, q, clock, hal.NoopLogger()), s
}

func TestEngineLifecycleRequiresLoadBeforeStart(t *testing.T) {
	e, _ := newTestEngine(t, 4, hal.NewSimClock(0))
	require.ErrorIs(t, e.Start(), zerr.ErrProtocolState)

	require.NoError(t, e.Init())
	require.ErrorIs(t, e.Start(), zerr.ErrProtocolState)
}

func TestEngineStartStopIdempotent(t *testing.T) {
	e, s := newTestEngine(t, 1, hal.NewSimClock(0))
	require.NoError(t, s.Write(0, &neuron.Record{NeuronID: 0, Flags: neuron.FlagActive}))
	require.NoError(t, e.Init())
	require.NoError(t, e.Load(0, 1))

	require.NoError(t, e.Start())
	require.NoError(t, e.Start()) // no-op
	require.Equal(t, Running, e.State())

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop()) // no-op
	require.Equal(t, Stopped, e.State())
}

func TestEngineStepLeaksAndFires(t *testing.T) {
	clock := hal.NewSimClock(1000)
	e, s := newTestEngine(t, 1, clock)
	require.NoError(t, s.Write(0, &neuron.Record{
		NeuronID:           0,
		Flags:              neuron.FlagActive,
		Threshold:          1.0,
		LeakRate:           0.1,
		RefractoryPeriodUs: 2000,
	}))
	require.NoError(t, e.Init())
	require.NoError(t, e.Load(0, 1))
	require.NoError(t, e.Start())

	require.NoError(t, e.Inject(0, 1.5, clock.NowUs()))
	require.NoError(t, e.Step())

	st := e.Stats()
	require.Equal(t, uint64(1), st.StepCount)
	require.Equal(t, uint64(1), st.SpikesFired)

	// refractory_until is runtime-only and the cache writes back only every
	// flushEvery steps, so check the live cached record.
	rec := e.cache.Get(0)
	require.NotNil(t, rec)
	require.Equal(t, float32(0), rec.MembranePotential)
	require.True(t, rec.IsRefractoryAt(clock.NowUs()))
}

func TestEngineStepLeaksInjectedPotentialTowardZero(t *testing.T) {
	clock := hal.NewSimClock(0)
	e, s := newTestEngine(t, 1, clock)
	require.NoError(t, s.Write(0, &neuron.Record{
		NeuronID:  0,
		Flags:     neuron.FlagActive,
		Threshold: 100,
		LeakRate:  0.1,
	}))
	// once running, Inject queues a nonzero potential for the next Step.
	require.NoError(t, e.Init())
	require.NoError(t, e.Load(0, 1))
	require.NoError(t, e.Start())
	require.NoError(t, e.Inject(0, 10, 0))
	require.NoError(t, e.Step()) // applies +10, then leak: 10 * 0.9 = 9
	require.NoError(t, e.cache.FlushAll())

	rec, err := s.Read(0)
	require.NoError(t, err)
	require.InDelta(t, 9.0, float64(rec.MembranePotential), 1e-5)
}

func TestEngineDeliverSpikeRoutesThroughSynapses(t *testing.T) {
	clock := hal.NewSimClock(0)
	e, s := newTestEngine(t, 2, clock)

	source := neuron.GlobalID(0, 0)
	require.NoError(t, s.Write(0, &neuron.Record{NeuronID: 0, Flags: neuron.FlagActive, Threshold: 1000}))
	require.NoError(t, s.Write(1, &neuron.Record{
		NeuronID:     1,
		Flags:        neuron.FlagActive,
		Threshold:    1000,
		SynapseCount: 1,
		Synapses:     [neuron.MaxSynapsesPerNeuron]neuron.Synapse{{SourceGlobalID: source, Weight: 0.5}},
	}))
	require.NoError(t, e.Init())
	require.NoError(t, e.Load(0, 2))
	require.NoError(t, e.Start())

	e.DeliverSpike(source, 2.0)
	require.NoError(t, e.Step()) // drains the routed event into neuron 1
	require.NoError(t, e.cache.FlushAll())

	rec, err := s.Read(1)
	require.NoError(t, err)
	// 2.0 * weight 0.5 as stored: weight byte 32 decodes to 32/63.5.
	require.InDelta(t, 2.0*neuron.DecodeWeight(neuron.EncodeWeight(0.5)), float64(rec.MembranePotential), 1e-5)
}
