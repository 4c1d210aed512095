package factory

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/model"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// WriterFactory builds one writer from its definition. The full config is
// passed for settings shared across writers, such as the unset label.
type WriterFactory func(def config.WriterDef, cfg *config.Config) (model.Writer, error)

var (
	mu sync.RWMutex
	// registry holds the mapping of writer types to their factory functions.
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers a new writer type with its factory function.
// Writer packages call it from init.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types lists the registered writer types in name order.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled writer of cfg.Output.Writers, in config
// order. If any writer fails, the ones already built are closed.
func Create(cfg *config.Config, logger *slog.Logger) ([]model.Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var writers []model.Writer
	fail := func(err error) ([]model.Writer, error) {
		for _, w := range writers {
			if cerr := w.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close writer '%s': %w", w.Name(), cerr))
			}
		}
		return nil, err
	}

	for i, def := range cfg.Output.Writers {
		if !def.Enabled {
			logger.Debug("writer disabled, skipping", slog.Int("index", i), slog.String("type", def.Type))
			continue
		}

		mu.RLock()
		factory, ok := registry[def.Type]
		mu.RUnlock()
		if !ok {
			return fail(fmt.Errorf("unknown writer type: '%s' (known: %v)", def.Type, Types()))
		}

		w, err := factory(def, cfg)
		if err != nil {
			return fail(fmt.Errorf("error creating writer type '%s': %w", def.Type, err))
		}
		logger.Info("writer created", slog.String("type", def.Type), slog.String("name", w.Name()))
		writers = append(writers, w)
	}
	return writers, nil
}
