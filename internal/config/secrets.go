package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
)

const (
	secretPrefixEnv  = "env://"
	secretPrefixFile = "file://"
)

// resolveSecrets replaces secret references in every string field of cfg,
// including strings inside slices. Supported formats:
//   - env://ENV_VAR_NAME - reads from environment variable
//   - file:///path/to/secret - reads from file (trims whitespace)
func resolveSecrets(cfg any) error {
	return resolveSecretsRecursive(reflect.ValueOf(cfg), "")
}

func resolveSecretsRecursive(v reflect.Value, path string) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if !field.CanSet() {
				continue
			}
			if err := resolveSecretsRecursive(field, joinPath(path, t.Field(i).Name)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := resolveSecretsRecursive(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.String:
		if !v.CanSet() {
			return nil
		}
		resolved, err := resolveSecretValue(v.String())
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		v.SetString(resolved)
	}

	return nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// resolveSecretValue resolves a single secret value if it has a secret prefix
func resolveSecretValue(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, secretPrefixEnv):
		envVar := strings.TrimPrefix(value, secretPrefixEnv)
		envValue, ok := os.LookupEnv(envVar)
		if !ok || envValue == "" {
			return "", fmt.Errorf("environment variable %q not set", envVar)
		}
		return envValue, nil

	case strings.HasPrefix(value, secretPrefixFile):
		filePath := strings.TrimPrefix(value, secretPrefixFile)
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file %q: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), nil

	default:
		return value, nil
	}
}
