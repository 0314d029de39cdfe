// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagBinder lets a field type register its own flags instead of
// going through tag reflection. [BindFlags] calls AddFlags on any
// exported struct field (embedded or named) whose address implements
// the interface; [JSONOutput] is the usual case.
type FlagBinder interface {
	AddFlags(flagSet *pflag.FlagSet)
}

// FlagsFromParams builds the flag set for a params struct. Commands
// use it as their Flags factory:
//
//	var params runParams
//	command := &cli.Command{
//	    Flags: func() *pflag.FlagSet {
//	        return cli.FlagsFromParams("run", &params)
//	    },
//	}
//
// Binding failures panic: a bad tag is a bug in the command, not
// something the user can repair at run time.
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers a flag for every tagged field of the struct
// params points to.
//
// The tags: flag:"name" or flag:"name,n" names the flag and an
// optional one-letter shorthand; desc:"..." is the help text;
// default:"..." is parsed per the field's type, zero value when
// absent. Untagged fields are skipped. Supported field types are
// string, bool, int, int64, float64, time.Duration, and []string.
//
// Struct-typed fields bind through [FlagBinder] when they implement
// it; embedded structs without it are walked recursively, so a params
// struct can compose shared pieces like [JSONOutput] or a common
// event block.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindFields(value.Elem(), flagSet)
}

func bindFields(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	structType := structValue.Type()

	for i := range structType.NumField() {
		field := structType.Field(i)
		fieldValue := structValue.Field(i)

		if field.Type.Kind() == reflect.Struct && field.IsExported() && fieldValue.CanAddr() {
			if binder, ok := fieldValue.Addr().Interface().(FlagBinder); ok {
				binder.AddFlags(flagSet)
				continue
			}
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindFields(fieldValue, flagSet); err != nil {
				return fmt.Errorf("embedded %s: %w", field.Name, err)
			}
			continue
		}

		tag := field.Tag.Get("flag")
		if tag == "" {
			continue
		}
		if !fieldValue.CanAddr() {
			return fmt.Errorf("field %s: not addressable", field.Name)
		}

		name, shorthand, _ := strings.Cut(tag, ",")
		if err := bindField(fieldValue, flagSet, name, shorthand,
			field.Tag.Get("desc"), field.Tag.Get("default")); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

// bindField registers one flag. The default tag is parsed with the
// strictness of the field's type; an unparsable default is reported
// against the flag name so the panic from FlagsFromParams reads well.
func bindField(fieldValue reflect.Value, flagSet *pflag.FlagSet, name, shorthand, description, defaultTag string) error {
	badDefault := func(err error) error {
		return fmt.Errorf("default for --%s: %w", name, err)
	}

	switch target := fieldValue.Addr().Interface().(type) {
	case *string:
		flagSet.StringVarP(target, name, shorthand, defaultTag, description)
	case *bool:
		value := false
		if defaultTag != "" {
			parsed, err := strconv.ParseBool(defaultTag)
			if err != nil {
				return badDefault(err)
			}
			value = parsed
		}
		flagSet.BoolVarP(target, name, shorthand, value, description)
	case *int:
		value := 0
		if defaultTag != "" {
			parsed, err := strconv.Atoi(defaultTag)
			if err != nil {
				return badDefault(err)
			}
			value = parsed
		}
		flagSet.IntVarP(target, name, shorthand, value, description)
	case *int64:
		var value int64
		if defaultTag != "" {
			parsed, err := strconv.ParseInt(defaultTag, 10, 64)
			if err != nil {
				return badDefault(err)
			}
			value = parsed
		}
		flagSet.Int64VarP(target, name, shorthand, value, description)
	case *float64:
		var value float64
		if defaultTag != "" {
			parsed, err := strconv.ParseFloat(defaultTag, 64)
			if err != nil {
				return badDefault(err)
			}
			value = parsed
		}
		flagSet.Float64VarP(target, name, shorthand, value, description)
	case *time.Duration:
		var value time.Duration
		if defaultTag != "" {
			parsed, err := time.ParseDuration(defaultTag)
			if err != nil {
				return badDefault(err)
			}
			value = parsed
		}
		flagSet.DurationVarP(target, name, shorthand, value, description)
	case *[]string:
		var value []string
		if defaultTag != "" {
			value = strings.Split(defaultTag, ",")
		}
		flagSet.StringSliceVarP(target, name, shorthand, value, description)
	default:
		return fmt.Errorf("unsupported type %s for flag --%s", fieldValue.Type(), name)
	}
	return nil
}
