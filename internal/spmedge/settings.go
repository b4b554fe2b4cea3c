package spmedge

// Pipeline setting keys stored in the state store. Values are strings;
// callers coerce.
const (
	SettingBatchSize        = "batch.size"
	SettingWorkers          = "workers"
	SettingCleanerUseAI     = "document_cleaner.use_ai"
	SettingCleanerMinChars  = "document_cleaner.min_chars_for_ai"
	SettingProcessorModel   = "document_processor.model"
	SettingProcessorMaxDocs = "document_processor.batch_size"
)

// DefaultBatchSize caps per-stage document selection when batch.size is unset.
const DefaultBatchSize = 500
