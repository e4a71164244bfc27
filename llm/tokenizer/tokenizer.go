package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer counts tokens for one model family.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数, 包括每条消息的开销。
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是 tokenizer 包使用的轻量级消息结构，避免依赖 llm 包。
type Message struct {
	Role    string
	Content string
}

var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// RegisterTokenizer 为给定的模型名称注册分词器.
func RegisterTokenizer(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// GetTokenizer 返回为模型注册的分词器，支持最长前缀匹配
// （"gpt-4o" 匹配 "gpt-4o-mini-2024"）。
func GetTokenizer(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}
	var best Tokenizer
	bestLen := 0
	for prefix, t := range modelTokenizers {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
	}
	return best, nil
}

// GetTokenizerOrEstimator 返回注册的分词器，未注册时回退到估算器。
func GetTokenizerOrEstimator(model string) Tokenizer {
	t, err := GetTokenizer(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return t
}

// Remaining returns how many tokens are left in the context window after
// messages and a completion reserve. A negative value means the request
// does not fit.
func Remaining(t Tokenizer, messages []Message, reserve int) (int, error) {
	used, err := t.CountMessages(messages)
	if err != nil {
		return 0, err
	}
	return t.MaxTokens() - used - reserve, nil
}
