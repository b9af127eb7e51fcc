package constants

// Fingerprint algorithms
const (
	AlgorithmBLAKE3     = "blake3"
	AlgorithmXXH3       = "xxh3"
	AlgorithmSHA256     = "sha256"
	AlgorithmCRC32      = "crc32"
	AlgorithmAdler32    = "adler32"
	AlgorithmFletcher16 = "fletcher16"
	AlgorithmFletcher32 = "fletcher32"
	AlgorithmFletcher64 = "fletcher64"

	DefaultAlgorithm = AlgorithmBLAKE3
)

// StorageRoot layout
const (
	DefaultStoreDirName = ".dedupe"
	ObjectsDirName      = "objects"
	TxnDirName          = ".txn"
	TmpDirName          = ".tmp"
	IndexFileName       = "index.db"
	ConfigFileName      = "dedupe.yaml"

	// TempLinkSuffix marks symlinks staged next to a member before they replace it.
	TempLinkSuffix = ".dedupe-link"
)

// Link styles
const (
	LinkStyleAbsolute = "absolute"
	LinkStyleRelative = "relative"
)

// I/O
const (
	// ReadBufferSize is the chunk size used when streaming files through a checksum.
	ReadBufferSize = 1 << 20
	// DisplayDigestLength is how much of a digest is shown in logs.
	DisplayDigestLength = 12
)

// File permissions
const (
	StandardDirPerms  = 0o755 // Standard directory permissions
	StandardFilePerms = 0o644 // Standard file permissions
)
