package unit

// Binary byte units. The audio cache budget is configured in mebibytes.
const (
	Byte     = 1
	Kibibyte = 1024 * Byte
	Mebibyte = 1024 * Kibibyte
	Gibibyte = 1024 * Mebibyte
)
