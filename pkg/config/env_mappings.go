package config

import (
	"reflect"
	"sync"
)

// envPaths maps each env tag in Config to its dotted koanf path. The env
// names are the unprefixed forms, so STUDIO_OAUTH_REFRESH_BUFFER is looked up
// as OAUTH_REFRESH_BUFFER.
var envPaths = sync.OnceValue(func() map[string]string {
	out := make(map[string]string)
	walkEnvTags(reflect.TypeFor[Config](), "", out)
	return out
})

func walkEnvTags(t reflect.Type, prefix string, out map[string]string) {
	for field := range fieldsOf(t) {
		key := field.Tag.Get("koanf")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if name := field.Tag.Get("env"); name != "" && name != "-" {
			out[name] = key
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			walkEnvTags(field.Type, key, out)
		}
	}
}

func fieldsOf(t reflect.Type) func(func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() && !yield(f) {
				return
			}
		}
	}
}

// EnvVarFor returns the unprefixed env name bound to a config path, or "".
func EnvVarFor(path string) string {
	for name, p := range envPaths() {
		if p == path {
			return name
		}
	}
	return ""
}
