package engine

import "strconv"

// settings wraps a ConfigSource with typed, fault-tolerant accessors.
// A missing, inactive, or malformed value always yields the caller's
// default: a broken config row must never stop a rule from running.
type settings struct {
	src ConfigSource
}

func (s settings) Int(key string, def int) int {
	raw, ok, err := s.src.ConfigValue(key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s settings) Bool(key string, def bool) bool {
	raw, ok, err := s.src.ConfigValue(key)
	if err != nil || !ok {
		return def
	}
	switch raw {
	case "true", "True", "1":
		return true
	case "false", "False", "0":
		return false
	}
	return def
}
