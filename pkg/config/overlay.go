package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overlay holds the subset of Config an operator may want to pin in a
// checked-in file rather than the environment, read the same way
// cmd/warren's "apply" command reads its YAML resources: unmarshal, then
// graft only the fields that were actually set onto the env-built Config.
type Overlay struct {
	HTTPAddr *string `yaml:"httpAddr"`

	AuthServiceURL    *string `yaml:"authServiceUrl"`
	ControlPlaneToken *string `yaml:"controlPlaneToken"`

	StoreBackend *string  `yaml:"storeBackend"`
	RedisHosts   []string `yaml:"redisHosts"`
	BoltPath     *string  `yaml:"boltPath"`

	NodeTTLSeconds           *int     `yaml:"nodeTtlSeconds"`
	NodeGraceFactor          *float64 `yaml:"nodeGraceFactor"`
	NodeSweepIntervalSeconds *int     `yaml:"nodeSweepIntervalSeconds"`
	HeartbeatIntervalSeconds *int     `yaml:"heartbeatIntervalSeconds"`
	MaxContainers            *int     `yaml:"maxContainers"`

	AutoscalerScaleUpThreshold   *float64 `yaml:"autoscalerScaleUpThreshold"`
	AutoscalerScaleDownThreshold *float64 `yaml:"autoscalerScaleDownThreshold"`
	AutoscalerMinNodes           *int     `yaml:"autoscalerMinNodes"`
	AutoscalerMaxNodes           *int     `yaml:"autoscalerMaxNodes"`
	AutoscalerCooldownSeconds    *int     `yaml:"autoscalerCooldownSeconds"`
	AutoscalerIntervalSeconds    *int     `yaml:"autoscalerIntervalSeconds"`
}

// LoadOverlayFile reads and parses a YAML overlay file. An empty path is
// not an error: it means the operator didn't pass --config.
func LoadOverlayFile(path string) (*Overlay, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, err
	}
	return &overlay, nil
}

// Apply grafts every set field of o onto cfg, leaving unset fields at
// whatever the environment (or defaults) already produced.
func (o *Overlay) Apply(cfg Config) Config {
	if o == nil {
		return cfg
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.AuthServiceURL != nil {
		cfg.AuthServiceURL = *o.AuthServiceURL
	}
	if o.ControlPlaneToken != nil {
		cfg.ControlPlaneToken = *o.ControlPlaneToken
	}
	if o.StoreBackend != nil {
		cfg.StoreBackend = *o.StoreBackend
	}
	if len(o.RedisHosts) > 0 {
		cfg.RedisHosts = o.RedisHosts
	}
	if o.BoltPath != nil {
		cfg.BoltPath = *o.BoltPath
	}
	if o.NodeTTLSeconds != nil {
		cfg.NodeTTL = time.Duration(*o.NodeTTLSeconds) * time.Second
	}
	if o.NodeGraceFactor != nil {
		cfg.NodeGraceFactor = *o.NodeGraceFactor
	}
	if o.NodeSweepIntervalSeconds != nil {
		cfg.NodeSweepInterval = time.Duration(*o.NodeSweepIntervalSeconds) * time.Second
	}
	if o.HeartbeatIntervalSeconds != nil {
		cfg.HeartbeatInterval = time.Duration(*o.HeartbeatIntervalSeconds) * time.Second
	}
	if o.MaxContainers != nil {
		cfg.MaxContainers = *o.MaxContainers
	}
	if o.AutoscalerScaleUpThreshold != nil {
		cfg.AutoscalerScaleUpThreshold = *o.AutoscalerScaleUpThreshold
	}
	if o.AutoscalerScaleDownThreshold != nil {
		cfg.AutoscalerScaleDownThreshold = *o.AutoscalerScaleDownThreshold
	}
	if o.AutoscalerMinNodes != nil {
		cfg.AutoscalerMinNodes = *o.AutoscalerMinNodes
	}
	if o.AutoscalerMaxNodes != nil {
		cfg.AutoscalerMaxNodes = *o.AutoscalerMaxNodes
	}
	if o.AutoscalerCooldownSeconds != nil {
		cfg.AutoscalerCooldown = time.Duration(*o.AutoscalerCooldownSeconds) * time.Second
	}
	if o.AutoscalerIntervalSeconds != nil {
		cfg.AutoscalerInterval = time.Duration(*o.AutoscalerIntervalSeconds) * time.Second
	}
	return cfg
}
