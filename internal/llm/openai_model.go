package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recruit-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultTimeoutSeconds = 30

// OpenAICompatChatModel 通过OpenAI兼容的chat completions接口实现 model.ToolCallingChatModel，
// 适配DashScope、OpenAI等任意兼容后端。
type OpenAICompatChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	boundTools []openAITool
}

// NewOpenAICompatChatModel 创建OpenAI兼容的聊天模型客户端
func NewOpenAICompatChatModel(apiKey, modelName, apiURL string, timeoutSeconds int) (*OpenAICompatChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("模型名不能为空")
	}
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("API地址不能为空")
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	logger.Info().
		Str("api_url", apiURL).
		Str("model", modelName).
		Msg("初始化OpenAI兼容LLM客户端")

	return &OpenAICompatChatModel{
		apiKey:    apiKey,
		modelName: modelName,
		apiURL:    apiURL,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}, nil
}

// ---- OpenAI兼容的请求/响应结构 ----

type openAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"` // 固定为 "function"
	Function openAIFunction `json:"function"`
}

type chatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"`
	Tools    []openAITool      `json:"tools,omitempty"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   *string        `json:"content"`
	ToolCalls []toolCallData `json:"tool_calls,omitempty"`
}

type toolCallData struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// Generate 实现 model.ChatModel 接口
func (c *OpenAICompatChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt // 通用选项暂无需处理，工具绑定走 WithTools/BindTools
	}

	reqPayload := chatCompletionRequest{
		Model:    c.modelName,
		Messages: messages,
	}
	if len(c.boundTools) > 0 {
		reqPayload.Tools = c.boundTools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化API响应失败: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("API返回了空的choices")
	}

	apiMessage := apiResp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.Assistant
	}
	if len(apiMessage.ToolCalls) > 0 {
		result.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			result.ToolCalls[i] = schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return result, nil
}

// Stream 实现 model.ChatModel 接口。匹配评估只用非流式调用，这里不实现。
func (c *OpenAICompatChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAICompatChatModel 未实现 Stream")
}

// BindTools 实现 model.ChatModel 接口。评估调用不依赖工具，
// 这里只保留名称和描述，参数schema统一为空对象。
func (c *OpenAICompatChatModel) BindTools(tools []*schema.ToolInfo) error {
	c.boundTools = make([]openAITool, 0, len(tools))
	emptyParams := json.RawMessage(`{"type":"object","properties":{}}`)
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		c.boundTools = append(c.boundTools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters:  emptyParams,
			},
		})
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (c *OpenAICompatChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := c.BindTools(tools); err != nil {
		return nil, err
	}
	return c, nil
}

var _ model.ChatModel = (*OpenAICompatChatModel)(nil)
var _ model.ToolCallingChatModel = (*OpenAICompatChatModel)(nil)
