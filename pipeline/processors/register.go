package processors

import (
	"github.com/docpipe/engine/pipeline"
	"github.com/rs/zerolog"
)

// Register wires every built-in processor constructor into registry,
// matching each against the uniform pipeline.Constructor signature.
func Register(registry *pipeline.Registry) {
	registry.Register("pdf_extractor", func(config pipeline.Config, logger zerolog.Logger, _ pipeline.BuilderHandle) (pipeline.Processor, error) {
		base := pipeline.NewBaseProcessor("pdf_extractor", config, logger)
		return newPDFExtractor(config, base), nil
	})

	registry.Register("image_preprocessor", func(config pipeline.Config, logger zerolog.Logger, _ pipeline.BuilderHandle) (pipeline.Processor, error) {
		base := pipeline.NewBaseProcessor("image_preprocessor", config, logger)
		return newImagePreprocessor(config, base), nil
	})

	registry.Register("ocr", func(config pipeline.Config, logger zerolog.Logger, _ pipeline.BuilderHandle) (pipeline.Processor, error) {
		base := pipeline.NewBaseProcessor("ocr", config, logger)
		return newOCRProcessor(config, base), nil
	})

	registry.Register("vlm", func(config pipeline.Config, logger zerolog.Logger, _ pipeline.BuilderHandle) (pipeline.Processor, error) {
		base := pipeline.NewBaseProcessor("vlm", config, logger)
		return newVLMProcessor(config, base)
	})

	registry.Register("classifier", func(config pipeline.Config, logger zerolog.Logger, _ pipeline.BuilderHandle) (pipeline.Processor, error) {
		base := pipeline.NewBaseProcessor("classifier", config, logger)
		return newClassifierProcessor(config, base)
	})

	registry.Register("sentiment", func(config pipeline.Config, logger zerolog.Logger, _ pipeline.BuilderHandle) (pipeline.Processor, error) {
		base := pipeline.NewBaseProcessor("sentiment", config, logger)
		return newSentimentProcessor(config, base)
	})

	registry.Register("composite", func(config pipeline.Config, logger zerolog.Logger, handle pipeline.BuilderHandle) (pipeline.Processor, error) {
		base := pipeline.NewBaseProcessor("composite", config, logger)
		return newCompositeProcessor(config, base, handle)
	})
}
