// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Configuration.

package hemi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/astaxie/beego/config"
)

func LoadConfigFile(path string) (config.Configer, error) {
	return config.NewConfig("ini", path)
}
func LoadConfigText(text string) (config.Configer, error) {
	return config.NewConfigData("ini", []byte(text))
}

// Config is a view of one section of an ini configuration. The first bad property is remembered and reported by Err.
type Config struct {
	section string
	props   map[string]string // keys are lowercase
	err     error
}

// NewConfig creates a section view. conf may be nil, in which case every property takes its default value.
func NewConfig(conf config.Configer, section string) *Config {
	c := &Config{section: section}
	if conf != nil {
		if props, err := conf.GetSection(section); err == nil {
			c.props = make(map[string]string, len(props))
			for name, value := range props {
				c.props[strings.ToLower(name)] = value
			}
		}
	}
	return c
}

func (c *Config) Section() string { return c.section }
func (c *Config) Err() error      { return c.err }

func (c *Config) Find(name string) (string, bool) {
	value, ok := c.props[strings.ToLower(name)]
	return value, ok
}

func (c *Config) ConfigureBool(name string, prop *bool, defaultValue bool) {
	_configureProp(c, name, prop, strconv.ParseBool, nil, defaultValue)
}
func (c *Config) ConfigureInt64(name string, prop *int64, check func(value int64) error, defaultValue int64) {
	_configureProp(c, name, prop, parseSize, check, defaultValue)
}
func (c *Config) ConfigureInt32(name string, prop *int32, check func(value int32) error, defaultValue int32) {
	_configureProp(c, name, prop, func(s string) (int32, error) {
		i64, err := parseSize(s)
		if err != nil {
			return 0, err
		}
		if i64 > _2G1 || i64 < -_2G1 {
			return 0, strconv.ErrRange
		}
		return int32(i64), nil
	}, check, defaultValue)
}
func (c *Config) ConfigureString(name string, prop *string, check func(value string) error, defaultValue string) {
	_configureProp(c, name, prop, func(s string) (string, error) { return s, nil }, check, defaultValue)
}
func (c *Config) ConfigureDuration(name string, prop *time.Duration, check func(value time.Duration) error, defaultValue time.Duration) {
	_configureProp(c, name, prop, parseDuration, check, defaultValue)
}
func (c *Config) ConfigureStringList(name string, prop *[]string, check func(value []string) error, defaultValue []string) {
	_configureProp(c, name, prop, parseList, check, defaultValue)
}

func _configureProp[T any](c *Config, name string, prop *T, conv func(string) (T, error), check func(value T) error, defaultValue T) {
	text, ok := c.Find(name)
	if !ok {
		*prop = defaultValue
		return
	}
	value, err := conv(strings.TrimSpace(text))
	if err != nil {
		c._fail(fmt.Errorf("invalid %s in [%s]: %w", name, c.section, err))
		*prop = defaultValue
		return
	}
	if check != nil {
		if err := check(value); err != nil {
			c._fail(fmt.Errorf("%s is error in [%s]: %w", name, c.section, err))
			*prop = defaultValue
			return
		}
	}
	*prop = value
}
func (c *Config) _fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// parseSize accepts plain integers and K/M/G suffixed sizes like "8K".
func parseSize(s string) (int64, error) {
	unit := int64(1)
	if n := len(s); n > 1 {
		switch s[n-1] {
		case 'K', 'k':
			unit = K
		case 'M', 'm':
			unit = M
		case 'G', 'g':
			unit = G
		}
		if unit != 1 {
			s = s[:n-1]
		}
	}
	i64, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return i64 * unit, nil
}

// parseDuration accepts Go durations like "20s" and bare seconds like "20".
func parseDuration(s string) (time.Duration, error) {
	if i64, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(i64) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseList splits on ';' and ','. Empty items are dropped.
func parseList(s string) ([]string, error) {
	items := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	list := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list, nil
}
