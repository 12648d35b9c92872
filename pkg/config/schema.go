// The config file schema is generated from the registered flags instead of a compiled .proto file: every flag listed
// in a section becomes an optional field of that section's message, typed after the flag's value. Adding a flag to
// the config therefore only takes adding its name to a section.

package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const schemaPackage = "policache.config"

// section groups flags under one message of the config file, e.g. `cache { cache_capacity: 10 }`.
type section struct {
	name  string
	flags []string
}

// sections lists every flag that can be set from the config file. Field numbers follow list order, so new flags are
// appended at the end of their section.
var sections = []section{
	{name: "log", flags: []string{"log_handler_type", "log_level"}},
	{name: "cache", flags: []string{"cache_policy", "cache_capacity", "cache_shard_count", "persist_queue_size"}},
	{name: "store", flags: []string{
		"store_backend", "sqlite_path", "store_bloom_capacity", "store_bloom_fp_rate",
		"object_endpoint", "object_bucket", "object_access_key", "object_secret_key", "object_use_ssl", "object_prefix",
	}},
	{name: "server", flags: []string{"address", "redis_write_timeout", "metrics_address"}},
}

// skippedProtobufFlags is the list of command line flags on which the protobuf check is disabled.
var skippedProtobufFlags = []string{"print_version", "config_file"}

// fieldType maps a flag's value type to a protobuf scalar type. Durations and custom values are kept as strings.
func fieldType(f *flag.Flag) descriptorpb.FieldDescriptorProto_Type {
	getter, ok := f.Value.(flag.Getter)
	if !ok {
		return descriptorpb.FieldDescriptorProto_TYPE_STRING
	}
	switch getter.Get().(type) {
	case bool:
		return descriptorpb.FieldDescriptorProto_TYPE_BOOL
	case int, int64:
		return descriptorpb.FieldDescriptorProto_TYPE_INT64
	case uint, uint64:
		return descriptorpb.FieldDescriptorProto_TYPE_UINT64
	case float64:
		return descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	case string, time.Duration:
		return descriptorpb.FieldDescriptorProto_TYPE_STRING
	default:
		return descriptorpb.FieldDescriptorProto_TYPE_STRING
	}
}

// sectionMessageName turns a section name into its message name, e.g. cache -> CacheConfig.
func sectionMessageName(name string) string {
	return strings.ToUpper(name[:1]) + name[1:] + "Config"
}

// buildSchema returns the descriptor of the root Config message for the flags registered in `fs`.
// Section flags that `fs` doesn't define are left out.
func buildSchema(fs *flag.FlagSet) (protoreflect.MessageDescriptor, error) {
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("policache/config.proto"),
		Package: proto.String(schemaPackage),
		Syntax:  proto.String("proto2"), // Gives scalar fields explicit presence.
	}
	root := &descriptorpb.DescriptorProto{Name: proto.String("Config")}
	for sectionIdx, s := range sections {
		messageName := sectionMessageName(s.name)
		message := &descriptorpb.DescriptorProto{Name: proto.String(messageName)}
		for flagIdx, flagName := range s.flags {
			f := fs.Lookup(flagName)
			if f == nil {
				continue
			}
			message.Field = append(message.Field, &descriptorpb.FieldDescriptorProto{
				Name:   proto.String(flagName),
				Number: proto.Int32(int32(flagIdx + 1)),
				Label:  optional,
				Type:   fieldType(f).Enum(),
			})
		}
		file.MessageType = append(file.MessageType, message)
		root.Field = append(root.Field, &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(s.name),
			Number:   proto.Int32(int32(sectionIdx + 1)),
			Label:    optional,
			Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
			TypeName: proto.String("." + schemaPackage + "." + messageName),
		})
	}
	file.MessageType = append(file.MessageType, root)

	fd, err := protodesc.NewFile(file, new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("failed to build config schema: %w", err)
	}
	return fd.Messages().ByName("Config"), nil
}

// sectionFlags returns the set of flag names that have a config entry.
func sectionFlags() (map[ /*flagName*/ string]struct{}, error) {
	defined := make(map[string]struct{})
	for _, s := range sections {
		for _, flagName := range s.flags {
			if _, exists := defined[flagName]; exists {
				return nil, fmt.Errorf("duplicate flag name '%s' in config section '%s'", flagName, s.name)
			}
			defined[flagName] = struct{}{}
		}
	}
	return defined, nil
}
