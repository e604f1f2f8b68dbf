package app

import (
	"github.com/ktr0731/dynpb/cache"
	"github.com/ktr0731/dynpb/logger"
	"github.com/ktr0731/dynpb/schema"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// loadFiles builds the type registry from the schema sources the config
// names: a descriptor set file, or proto sources compiled on the fly,
// optionally through the compiled schema cache.
func loadFiles(cfg *mergedConfig) (*schema.Files, error) {
	files, err := resolveFiles(cfg)
	if err != nil {
		return nil, err
	}
	logger.Scriptf("loaded %d message types and %d enum types", func() []interface{} {
		return []interface{}{len(files.MessageNames()), len(files.EnumNames())}
	})
	return files, nil
}

func resolveFiles(cfg *mergedConfig) (*schema.Files, error) {
	if cfg.Default.DescriptorSet != "" {
		return schema.LoadFileDescriptorSet(cfg.Default.DescriptorSet)
	}
	if len(cfg.Default.ProtoFile) == 0 {
		return nil, errors.New("no schema sources are specified, set --proto or --descriptor-set")
	}
	if !cfg.Cache.Enabled {
		return schema.LoadFiles(cfg.Default.ProtoPath, cfg.Default.ProtoFile)
	}

	key, err := cache.Key(cfg.Default.ProtoPath, cfg.Default.ProtoFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute the schema cache key")
	}
	if b, err := cache.Load(key); err == nil {
		set := &descriptorpb.FileDescriptorSet{}
		if err := proto.Unmarshal(b, set); err != nil {
			logger.Printf("the schema cache for key %s is broken: %s", key, err)
		} else {
			logger.Scriptf("schema cache hit for key %s", func() []interface{} {
				return []interface{}{key}
			})
			return schema.NewFiles(set)
		}
	} else if err != cache.ErrCacheMiss {
		logger.Printf("failed to load the schema cache: %s", err)
	}

	set, err := schema.CompileFileDescriptorSet(cfg.Default.ProtoPath, cfg.Default.ProtoFile)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(set)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize the compiled descriptors")
	}
	if err := cache.Store(key, cfg.Default.ProtoFile, b); err != nil {
		logger.Printf("failed to store the schema cache: %s", err)
	}
	return schema.NewFiles(set)
}
