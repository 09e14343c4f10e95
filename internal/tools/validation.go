// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package tools

import "fmt"

// ValidationRule checks one aspect of a tool's arguments.
type ValidationRule func(args map[string]interface{}) error

// ChainValidation runs rules in order and stops at the first failure.
func ChainValidation(rules ...ValidationRule) func(args map[string]interface{}) error {
	return func(args map[string]interface{}) error {
		for _, rule := range rules {
			if err := rule(args); err != nil {
				return err
			}
		}
		return nil
	}
}

// RequireStringArg fails unless args carries a non-empty string under key.
func RequireStringArg(key string) ValidationRule {
	return func(args map[string]interface{}) error {
		val, ok := args[key]
		if !ok {
			return errInvalidArguments(fmt.Sprintf("missing required argument: %s", key))
		}
		str, ok := val.(string)
		if !ok {
			return errInvalidArguments(fmt.Sprintf("argument %s must be a string", key))
		}
		if str == "" {
			return errInvalidArguments(fmt.Sprintf("argument %s cannot be empty", key))
		}
		return nil
	}
}

// stringArg returns the string under key, or fallback when absent.
func stringArg(args map[string]interface{}, key, fallback string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return fallback
}

// boolArg returns the boolean under key, or false when absent.
func boolArg(args map[string]interface{}, key string) bool {
	val, _ := args[key].(bool)
	return val
}

// intArg returns the integer under key. JSON numbers decode as float64, so
// both representations are accepted.
func intArg(args map[string]interface{}, key string, fallback int64) int64 {
	switch val := args[key].(type) {
	case float64:
		return int64(val)
	case int:
		return int64(val)
	case int64:
		return val
	}
	return fallback
}
