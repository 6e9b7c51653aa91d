/*
 * MIT License
 *
 * Copyright (c) 2024 Salim Abouaram
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads the runtime's two configuration structs -
// ServerConfig and ClientConfig - via viper, validated with
// go-playground/validator.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// ServerConfig is the server binary's configurable surface.
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address" validate:"required,hostname_port"`
	CertFile    string `mapstructure:"cert_file" validate:"required_without=SelfSigned"`
	KeyFile     string `mapstructure:"key_file" validate:"required_without=SelfSigned"`
	SelfSigned  bool   `mapstructure:"self_signed"`
}

// ClientConfig is the client binary's configurable surface.
type ClientConfig struct {
	Host               string `mapstructure:"host" validate:"required,hostname_port"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// LoadServerConfig reads a ServerConfig from path (any format viper
// supports: yaml, json, toml...) and validates it.
func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config: invalid server config: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig reads a ClientConfig from path and validates it.
func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("config: invalid client config: %w", err)
	}
	return cfg, nil
}

func load(path string, out interface{}) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("config: unmarshalling %s: %w", path, err)
	}
	return nil
}
