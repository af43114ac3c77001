/*
Copyright © contributors to fleetdeck.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package configparser contains the code required to load a configuration
// structure from the environment and from a map of settings. The fields
// are bound through the "env" struct tag.
//
// Supported field types: string, bool, int and []string (comma separated)
package configparser

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/cloudnative-pg/machinery/pkg/log"
)

// ReadConfigMap reads the configuration from the environment and the passed
// data map. The values of the map have the precedence. Invalid values are
// replaced by the corresponding value in the defaults structure.
func ReadConfigMap(target any, defaults any, data map[string]string) {
	ReadConfigMapWithEnv(target, defaults, data, OsEnvironment{})
}

// ReadConfigMapWithEnv reads the configuration from the passed environment
// source and data map, see ReadConfigMap
func ReadConfigMapWithEnv(target any, defaults any, data map[string]string, env EnvironmentSource) {
	ensurePointerToCompatibleStruct("target", target, "default", defaults)

	count := reflect.TypeOf(defaults).Elem().NumField()
	for i := 0; i < count; i++ {
		field := reflect.TypeOf(defaults).Elem().Field(i)
		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		// Initialize value with default
		defaultValue := reflect.ValueOf(defaults).Elem().FieldByName(field.Name)
		targetField := reflect.ValueOf(target).Elem().FieldByName(field.Name)
		targetField.Set(defaultValue)

		value := env.Getenv(envName)
		if configValue, ok := data[envName]; ok {
			value = configValue
		}
		if value == "" {
			continue
		}

		switch targetField.Kind() {
		case reflect.Bool:
			boolValue, err := strconv.ParseBool(value)
			if err != nil {
				log.Info("Skipping invalid boolean value parsing configuration", "value", value, "field", envName)
				continue
			}
			targetField.SetBool(boolValue)
		case reflect.Int:
			intValue, err := strconv.ParseInt(value, 10, 0)
			if err != nil {
				log.Info("Skipping invalid integer value parsing configuration", "value", value, "field", envName)
				continue
			}
			targetField.SetInt(intValue)
		case reflect.String:
			targetField.SetString(value)
		case reflect.Slice:
			targetField.Set(reflect.ValueOf(splitAndTrim(value)))
		default:
			log.Warning("Skipping unsupported configuration field", "kind", targetField.Kind(), "field", envName)
		}
	}
}

func ensurePointerToCompatibleStruct(
	targetName string, target any,
	defaultsName string, defaults any,
) {
	targetType := reflect.TypeOf(target)
	if targetType.Kind() != reflect.Ptr || targetType.Elem().Kind() != reflect.Struct {
		panic(targetName + " must be a pointer to a struct")
	}
	defaultsType := reflect.TypeOf(defaults)
	if defaultsType.Kind() != reflect.Ptr || defaultsType.Elem().Kind() != reflect.Struct {
		panic(defaultsName + " must be a pointer to a struct")
	}
	if targetType.Elem() != defaultsType.Elem() {
		panic(targetName + " and " + defaultsName + " must have the same type")
	}
}

// splitAndTrim slices a string into all substrings after each comma and
// returns a slice of those substrings, removing the leading and trailing
// spaces of each one
func splitAndTrim(commaSeparatedList string) []string {
	list := strings.Split(commaSeparatedList, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list
}
