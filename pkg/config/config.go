// Policache uses flags and a single config file for configuration.
// A config file is stored in .txtpb format and contains the values that can be set via flags, grouped by section:
//
//	cache { cache_policy: "lfu" cache_capacity: 4096 }
//	store { store_backend: "sqlite" sqlite_path: "/var/lib/policache/cache.db" }
//
// Flags given on the command line win over the config file.

package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var configFilePath = flag.String("config_file", "config.txtpb", "Path to the configuration file.")

// protobufValueToString converts a protobuf field value to its string representation suitable for flag setting.
func protobufValueToString(fd protoreflect.FieldDescriptor, v protoreflect.Value) (string, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return strconv.FormatBool(v.Bool()), nil
	case protoreflect.Int64Kind:
		return strconv.FormatInt(v.Int(), 10), nil
	case protoreflect.Uint64Kind:
		return strconv.FormatUint(v.Uint(), 10), nil
	case protoreflect.DoubleKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case protoreflect.StringKind:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported kind: %v", fd.Kind())
	}
}

// collectFlags puts the flags filled in `conf` into `flags`.
func collectFlags(flags map[ /*flagName*/ string] /*flagValue*/ string, conf protoreflect.Message) error {
	var err error
	conf.Range(func(sectionField protoreflect.FieldDescriptor, sectionValue protoreflect.Value) bool {
		sectionValue.Message().Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
			stringValue, convErr := protobufValueToString(fd, v)
			if convErr != nil {
				err = fmt.Errorf("failed to convert %s: %w", fd.FullName(), convErr)
				return false
			}
			flags[string(fd.Name())] = stringValue
			return true
		})
		return err == nil
	})
	return err
}

// Apply parses `configBytes` as a txtpb config and sets the filled flags of `fs`, except for the flags that were
// already set explicitly.
func Apply(fs *flag.FlagSet, configBytes []byte) error {
	schema, err := buildSchema(fs)
	if err != nil {
		return err
	}
	conf := dynamicpb.NewMessage(schema)
	if err := prototext.Unmarshal(configBytes, conf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	configFlags := make(map[ /*flagName*/ string] /*flagValue*/ string)
	if err := collectFlags(configFlags, conf); err != nil {
		return fmt.Errorf("failed to collect flags: %w", err)
	}
	explicitFlags := make(map[string]struct{})
	fs.Visit(func(f *flag.Flag) { explicitFlags[f.Name] = struct{}{} })
	for flagName, flagValue := range configFlags {
		if _, explicit := explicitFlags[flagName]; explicit {
			slog.Debug("Flag is set on the command line; ignoring its config entry.", "flag", flagName)
			continue
		}
		if err := fs.Set(flagName, flagValue); err != nil {
			return fmt.Errorf("failed to set flag %s: %w", flagName, err)
		}
	}
	return nil
}

// LoadFile applies the config file at `path` to `fs`. A missing file leaves the flags untouched.
func LoadFile(fs *flag.FlagSet, path string) error {
	if path == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return nil
	}
	configBytes, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Config file does not exist.", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := Apply(fs, configBytes); err != nil {
		return fmt.Errorf("failed to apply config file %s: %w", path, err)
	}
	slog.Info("Loaded config file.", "path", path)
	return nil
}

// InitFlags parses the command line and then fills the remaining flags from the file given by --config_file.
// It should be called after defining all flags and before using them.
func InitFlags() error {
	flag.Parse()
	return LoadFile(flag.CommandLine, *configFilePath)
}

// CollectUnregisteredFlags collects all flags that haven't been registered in the config schema.
// An error exists in the results corresponding to each unregistered flag.
func CollectUnregisteredFlags() []error {
	return collectUnregisteredFlags(flag.CommandLine)
}

func collectUnregisteredFlags(fs *flag.FlagSet) []error {
	definedFlags, err := sectionFlags()
	if err != nil {
		return []error{err}
	}
	errs := make([]error, 0)
	fs.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "test.") { // Skip test flags.
			return
		}
		if slices.Contains(skippedProtobufFlags, f.Name) {
			return
		}
		if _, flagHasConfigEntry := definedFlags[f.Name]; !flagHasConfigEntry {
			errs = append(errs, fmt.Errorf("flag '%s' has not been defined in config sections", f.Name))
		}
	})
	return errs
}
