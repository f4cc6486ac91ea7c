package anchor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhiraudit/internal/fhir"
	"fhiraudit/internal/fhir/store"
	dErrors "fhiraudit/pkg/domain-errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore counts SearchAll calls to observe cache hits.
type countingStore struct {
	*store.InMemory
	searches int
}

func (s *countingStore) SearchAll(ctx context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error) {
	s.searches++
	return s.InMemory.SearchAll(ctx, rt)
}

func TestResolverMissingAnchors(t *testing.T) {
	r := NewResolver(store.NewInMemory(), WithLogger(quietLogger()))

	_, err := r.Device(context.Background())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingAnchor))

	_, err = r.Workflow(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingAnchor))
}

func TestBootstrapThenResolve(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemory()

	anchors, err := Bootstrap(ctx, s, BootstrapConfig{})
	require.NoError(t, err)
	assert.Equal(t, "PlanDefinition/rad-wf", anchors.Workflow.String())
	assert.Equal(t, fhir.TypeDevice, anchors.Device.ResourceType())

	again, err := Bootstrap(ctx, s, BootstrapConfig{})
	require.NoError(t, err)
	assert.Equal(t, anchors, again, "bootstrap is idempotent")

	devices, err := s.SearchAll(ctx, fhir.TypeDevice)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	var device deviceJSON
	require.NoError(t, json.Unmarshal(devices[0].Body, &device))
	assert.Equal(t, DefaultDeviceName, device.DeviceName[0].Name)

	r := NewResolver(s, WithLogger(quietLogger()), WithWorkflowID(DefaultWorkflowID))
	dev, err := r.Device(ctx)
	require.NoError(t, err)
	assert.Equal(t, anchors.Device, dev)

	wf, err := r.Workflow(ctx)
	require.NoError(t, err)
	assert.Equal(t, anchors.Workflow, wf)
}

func TestResolverCachesLookups(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{InMemory: store.NewInMemory()}
	_, err := Bootstrap(ctx, s.InMemory, BootstrapConfig{})
	require.NoError(t, err)

	t.Run("ttl caches", func(t *testing.T) {
		s.searches = 0
		r := NewResolver(s, WithCache(NewMemoryCache(time.Minute)), WithLogger(quietLogger()))
		for i := 0; i < 3; i++ {
			_, err := r.Device(ctx)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, s.searches)

		require.NoError(t, r.Invalidate(ctx))
		_, err := r.Device(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, s.searches)
	})

	t.Run("zero ttl always re-queries", func(t *testing.T) {
		s.searches = 0
		r := NewResolver(s, WithCache(NewMemoryCache(0)), WithLogger(quietLogger()))
		for i := 0; i < 3; i++ {
			_, err := r.Device(ctx)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, s.searches)
	})
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, KindDevice, fhir.NewReference(fhir.TypeDevice, "d1")))
	ref, ok, err := c.Get(ctx, KindDevice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Device/d1", ref.String())

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, KindDevice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkflowByRef(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemory()
	_, err := Bootstrap(ctx, s, BootstrapConfig{})
	require.NoError(t, err)
	r := NewResolver(s, WithLogger(quietLogger()))

	t.Run("zero selects default", func(t *testing.T) {
		ref, err := r.WorkflowByRef(ctx, fhir.Reference{})
		require.NoError(t, err)
		assert.Equal(t, "PlanDefinition/rad-wf", ref.String())
	})

	t.Run("explicit existing", func(t *testing.T) {
		ref, err := r.WorkflowByRef(ctx, fhir.Reference{Reference: "PlanDefinition/rad-wf"})
		require.NoError(t, err)
		assert.Equal(t, "PlanDefinition/rad-wf", ref.String())
	})

	t.Run("unknown workflow", func(t *testing.T) {
		_, err := r.WorkflowByRef(ctx, fhir.Reference{Reference: "PlanDefinition/other"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingAnchor))
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := r.WorkflowByRef(ctx, fhir.Reference{Reference: "Patient/1"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestResolverConfirmsCachedAnchors(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted workflow is missing despite the cache", func(t *testing.T) {
		s := store.NewInMemory()
		anchors, err := Bootstrap(ctx, s, BootstrapConfig{})
		require.NoError(t, err)
		r := NewResolver(s,
			WithCache(NewMemoryCache(time.Hour)),
			WithWorkflowID(DefaultWorkflowID),
			WithLogger(quietLogger()),
		)

		wf, err := r.Workflow(ctx)
		require.NoError(t, err)
		assert.Equal(t, anchors.Workflow, wf)

		require.NoError(t, s.Delete(ctx, fhir.TypePlanDefinition, DefaultWorkflowID))

		_, err = r.Workflow(ctx)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingAnchor))
		_, err = r.WorkflowByRef(ctx, fhir.Reference{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingAnchor))
	})

	t.Run("deleted device falls through to the next one", func(t *testing.T) {
		s := store.NewInMemory()
		anchors, err := Bootstrap(ctx, s, BootstrapConfig{})
		require.NoError(t, err)
		spare, err := s.Create(ctx, &fhir.Resource{Type: fhir.TypeDevice, Body: json.RawMessage(`{"resourceType":"Device"}`)})
		require.NoError(t, err)
		r := NewResolver(s, WithCache(NewMemoryCache(time.Hour)), WithLogger(quietLogger()))

		dev, err := r.Device(ctx)
		require.NoError(t, err)
		require.Equal(t, anchors.Device, dev)

		require.NoError(t, s.Delete(ctx, fhir.TypeDevice, anchors.Device.ID()))

		dev, err = r.Device(ctx)
		require.NoError(t, err)
		assert.Equal(t, spare.Reference(), dev)
	})
}
