package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDrivers_RegistersModel(t *testing.T) {
	d := NewDrivers()
	assert.True(t, d.Has(DriverModel))
	assert.Equal(t, []string{DriverModel}, d.Names())
}

func TestDrivers_Unknown(t *testing.T) {
	_, err := NewDrivers().New("redis", modelConfig(), mapLoader{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "unknown session driver: redis")
}

func TestDrivers_MalformedRegistration(t *testing.T) {
	d := NewDrivers()
	d.Register("broken", nil)

	assert.True(t, d.Has("broken"))
	_, err := d.New("broken", modelConfig(), mapLoader{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestDrivers_FactoryReturningNil(t *testing.T) {
	d := NewDrivers()
	d.Register("empty", func(Config, ModelLoader) (SaveHandler, error) { return nil, nil })

	_, err := d.New("empty", modelConfig(), mapLoader{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestDrivers_CustomDriver(t *testing.T) {
	store := NewMemoryStore()
	d := NewDrivers()
	d.Register("memory", func(Config, ModelLoader) (SaveHandler, error) { return store, nil })

	h, err := d.New("memory", Config{Handler: "memory"}, nil)
	require.NoError(t, err)
	assert.Same(t, store, h)
	assert.Equal(t, []string{"memory", DriverModel}, d.Names())
}

func TestDrivers_ModelDriverErrorsPropagate(t *testing.T) {
	_, err := NewDrivers().New(DriverModel, modelConfig(), mapLoader{testModelName: writelessModel{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapability))
}
