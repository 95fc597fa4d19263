package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Database  DatabaseConfig `yaml:"database"`
	EmbedLLM  LLMConfig      `yaml:"embed_llm"`
	GenLLM    LLMConfig      `yaml:"gen_llm"`
	RAG       RAGConfig      `yaml:"rag"`
	Templates TemplateConfig `yaml:"templates"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type RAGConfig struct {
	DBPath       string `yaml:"db_path"`
	Collection   string `yaml:"collection"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
}

type TemplateConfig struct {
	Plain      string `yaml:"plain"`
	Base       string `yaml:"base"`
	Extraction string `yaml:"extraction"`
}

const (
	defaultAddr         = ":8000"
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 150  // characters
	defaultTopK         = 5
	defaultCollection   = "library_docs"
	defaultDBPath       = "./chromemdb"
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap < 0 {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		c.RAG.ChunkOverlap = c.RAG.ChunkSize / 2
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.Collection == "" {
		c.RAG.Collection = defaultCollection
	}
	if c.RAG.DBPath == "" {
		c.RAG.DBPath = defaultDBPath
	}
	if c.Templates.Plain == "" {
		c.Templates.Plain = "config/preprompt.txt"
	}
	if c.Templates.Base == "" {
		c.Templates.Base = "config/preprompt-2.txt"
	}
	if c.Templates.Extraction == "" {
		c.Templates.Extraction = "config/retrieval.txt"
	}
}
