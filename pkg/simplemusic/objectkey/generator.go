package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates the key of a new object stored under folder
	GenerateKey(folder string, objectID uuid.UUID, fileName string) string
}

// FlatGenerator places every object directly under its folder:
// songs/audio/{objectID}_{filename}
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(folder string, objectID uuid.UUID, fileName string) string {
	name := objectID.String()
	if base := sanitizeFilename(path.Base(fileName)); base != "" && base != "." && base != "_" {
		name = fmt.Sprintf("%s_%s", name, base)
	}
	return joinFolder(folder, name)
}

// ShardedGenerator provides Git-style sharding inside each folder
// songs/audio/ab/cd1234ef5678_filename
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{
		ShardLength: 2,
	}
}

func (g *ShardedGenerator) GenerateKey(folder string, objectID uuid.UUID, fileName string) string {
	idStr := strings.ReplaceAll(objectID.String(), "-", "")

	shardLength := g.ShardLength
	if shardLength <= 0 || shardLength > len(idStr) {
		shardLength = 2
	}

	shardDir := idStr[:shardLength]
	filename := idStr[shardLength:]
	if base := sanitizeFilename(path.Base(fileName)); base != "" && base != "." && base != "_" {
		filename = fmt.Sprintf("%s_%s", filename, base)
	}

	return joinFolder(folder, shardDir+"/"+filename)
}

// NewRecommendedGenerator returns the generator used when none is configured
func NewRecommendedGenerator() Generator {
	return NewFlatGenerator()
}

// FolderOf returns the folder part of a key produced by a Generator, i.e.
// everything up to the last path element ("songs/audio" for
// "songs/audio/xyz_a.mp3").
func FolderOf(key string) string {
	dir := path.Dir(key)
	if dir == "." {
		return ""
	}
	return dir
}

func joinFolder(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// sanitizeFilename replaces characters that are problematic in object keys
// and URLs.
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"#", "_",
		"%", "_",
	)
	return replacer.Replace(filename)
}
