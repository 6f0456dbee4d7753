package types

// Model is a loadable GGUF model discovered in the models directory.
type Model struct {
	// Stable identifier (the file name).
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Human-friendly name.
	// example: tinyllama-q4.gguf
	Name string `json:"name" example:"tinyllama-q4.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama-q4.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-q4.gguf"`
	// Quantization variant, when known.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Model family, when known (e.g., llama, gemma, qwen).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
}
