package models

import (
	"fmt"
	"strings"

	"sona-transcriber/internal/domain"
)

var modelCatalog = []domain.CatalogEntry{
	{
		ID:              "sense-voice-small",
		DisplayName:     "SenseVoice Small",
		Description:     "Multilingual offline model (zh/en/ja/ko/yue), good default.",
		SourcePath:      "/csukuangfj/sherpa-onnx-sense-voice-zh-en-ja-ko-yue-2024-07-17/resolve/main/sherpa-onnx-sense-voice-zh-en-ja-ko-yue-2024-07-17.tar.bz2",
		ArchiveFileName: "sherpa-onnx-sense-voice-zh-en-ja-ko-yue-2024-07-17.tar.bz2",
		ExecutionEngine: domain.ExecutionEngineCPU,
		SizeClass:       domain.SizeClassMedium,
	},
	{
		ID:              "paraformer-zh",
		DisplayName:     "Paraformer (Chinese)",
		Description:     "Offline Paraformer model tuned for Mandarin.",
		SourcePath:      "/csukuangfj/sherpa-onnx-paraformer-zh-2023-09-14/resolve/main/sherpa-onnx-paraformer-zh-2023-09-14.tar.bz2",
		ArchiveFileName: "sherpa-onnx-paraformer-zh-2023-09-14.tar.bz2",
		ExecutionEngine: domain.ExecutionEngineCPU,
		SizeClass:       domain.SizeClassMedium,
	},
	{
		ID:              "zipformer-streaming-zh-en",
		DisplayName:     "Zipformer Streaming (zh/en)",
		Description:     "Bilingual streaming model for live dictation.",
		SourcePath:      "/csukuangfj/sherpa-onnx-streaming-zipformer-bilingual-zh-en-2023-02-20/resolve/main/sherpa-onnx-streaming-zipformer-bilingual-zh-en-2023-02-20.tar.bz2",
		ArchiveFileName: "sherpa-onnx-streaming-zipformer-bilingual-zh-en-2023-02-20.tar.bz2",
		ExecutionEngine: domain.ExecutionEngineCPU,
		SizeClass:       domain.SizeClassLarge,
	},
	{
		ID:              "whisper-turbo-cuda",
		DisplayName:     "Whisper Turbo (GPU)",
		Description:     "Large multilingual model, requires a CUDA-capable GPU.",
		SourcePath:      "/csukuangfj/sherpa-onnx-whisper-turbo/resolve/main/sherpa-onnx-whisper-turbo.tar.bz2",
		ArchiveFileName: "sherpa-onnx-whisper-turbo.tar.bz2",
		ExecutionEngine: domain.ExecutionEngineCUDA,
		SizeClass:       domain.SizeClassLarge,
	},
	{
		ID:              "punct-ct-transformer",
		DisplayName:     "Punctuation (CT-Transformer)",
		Description:     "Restores punctuation for zh/en transcripts.",
		SourcePath:      "/csukuangfj/sherpa-onnx-punct-ct-transformer-zh-en-vocab272727-2024-04-12/resolve/main/sherpa-onnx-punct-ct-transformer-zh-en-vocab272727-2024-04-12.tar.bz2",
		ArchiveFileName: "sherpa-onnx-punct-ct-transformer-zh-en-vocab272727-2024-04-12.tar.bz2",
		ExecutionEngine: domain.ExecutionEngineCPU,
		SizeClass:       domain.SizeClassSmall,
	},
	{
		ID:              "vad-silero",
		DisplayName:     "Silero VAD",
		Description:     "Voice activity detection model.",
		SourcePath:      "/csukuangfj/silero-vad/resolve/main/silero_vad.onnx",
		InstallFileName: "silero_vad.onnx",
		ExecutionEngine: domain.ExecutionEngineCPU,
		SizeClass:       domain.SizeClassSmall,
	},
	{
		ID:              "itn-zh-number",
		DisplayName:     "Chinese Number ITN",
		Description:     "Inverse text normalization rules for Chinese numbers.",
		SourcePath:      "/csukuangfj/itn-zh-number/resolve/main/itn_zh_number.fst",
		InstallFileName: "itn_zh_number.fst",
		ExecutionEngine: domain.ExecutionEngineCPU,
		SizeClass:       domain.SizeClassSmall,
	},
	{
		ID:              "itn-zh-date",
		DisplayName:     "Chinese Date ITN",
		Description:     "Inverse text normalization rules for Chinese dates.",
		SourcePath:      "/csukuangfj/itn-zh-date/resolve/main/itn_zh_date.fst",
		InstallFileName: "itn_zh_date.fst",
		ExecutionEngine: domain.ExecutionEngineCPU,
		SizeClass:       domain.SizeClassSmall,
	},
}

// Catalog returns all catalog entries with installation state resolved.
func (r *Resolver) Catalog() []domain.CatalogEntry {
	entries := make([]domain.CatalogEntry, len(modelCatalog))
	copy(entries, modelCatalog)

	for i := range entries {
		if path, ok := r.InstalledPath(entries[i]); ok {
			entries[i].Installed = true
			entries[i].InstalledPath = path
		}
	}
	return entries
}

// Lookup returns the catalog entry with the given id.
func Lookup(id string) (domain.CatalogEntry, error) {
	trimmed := strings.TrimSpace(id)
	for _, entry := range modelCatalog {
		if entry.ID == trimmed {
			return entry, nil
		}
	}
	return domain.CatalogEntry{}, fmt.Errorf("unknown catalog id: %s", id)
}
