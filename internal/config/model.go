package config

import "digitforge/internal/model"

// ModelConfig converts the dimension knobs into a versioned model config.
func (c *CVAE) ModelConfig() model.CVAEConfig {
	return model.CVAEConfig{
		Version:    model.CVAEConfigVersion,
		XDim:       c.XDim,
		HDim1:      c.HDim1,
		HDim2:      c.HDim2,
		ZDim:       c.ZDim,
		NumClasses: model.NumClasses,
	}
}
