package trialproxy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tp "github.com/crosstrans/trialproxy"
)

func testDescriptors() []tp.Descriptor {
	return []tp.Descriptor{
		{ID: "a", DisplayName: "A", EndpointURL: "https://a.test", DefaultModel: "m-a", CredentialEnvKey: "A_KEY"},
		{ID: "b", DisplayName: "B", EndpointURL: "https://b.test", DefaultModel: "m-b", CredentialEnvKey: "B_KEY"},
		{ID: "c", DisplayName: "C", EndpointURL: "https://c.test", DefaultModel: "m-c", CredentialEnvKey: "C_KEY"},
	}
}

func TestRegistry_ActiveFiltersAndPreservesOrder(t *testing.T) {
	r, err := tp.NewRegistry(testDescriptors(), tp.WithCredentialSource(staticCreds(map[string]string{
		"A_KEY": "secret-a",
		"C_KEY": "secret-c",
	})))
	require.NoError(t, err)

	active := r.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "secret-a", active[0].Credential)
	assert.Equal(t, "c", active[1].ID)
	assert.Equal(t, "secret-c", active[1].Credential)
}

func TestRegistry_NoCredentialsMeansNoneActive(t *testing.T) {
	r, err := tp.NewRegistry(testDescriptors(), tp.WithCredentialSource(staticCreds(nil)))
	require.NoError(t, err)
	assert.Empty(t, r.Active())
}

func TestRegistry_Validation(t *testing.T) {
	_, err := tp.NewRegistry(nil)
	assert.Error(t, err, "empty registry")

	_, err = tp.NewRegistry([]tp.Descriptor{
		{ID: "a", EndpointURL: "https://a.test", CredentialEnvKey: "A_KEY"},
		{ID: "a", EndpointURL: "https://b.test", CredentialEnvKey: "B_KEY"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate provider id")

	_, err = tp.NewRegistry([]tp.Descriptor{{ID: "a", CredentialEnvKey: "A_KEY"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint URL")

	_, err = tp.NewRegistry([]tp.Descriptor{{ID: "a", EndpointURL: "https://a.test"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential key")
}

func TestRegistry_DescriptorsIsACopy(t *testing.T) {
	r, err := tp.NewRegistry(testDescriptors())
	require.NoError(t, err)

	descs := r.Descriptors()
	descs[0].ID = "mutated"

	assert.Equal(t, "a", r.Descriptors()[0].ID)
}

func TestDefaultDescriptors(t *testing.T) {
	descs := tp.DefaultDescriptors()
	require.Len(t, descs, 3)

	seen := map[string]bool{}
	for _, d := range descs {
		assert.NotEmpty(t, d.DisplayName)
		assert.NotEmpty(t, d.EndpointURL)
		assert.NotEmpty(t, d.DefaultModel)
		assert.NotEmpty(t, d.CredentialEnvKey)
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}
