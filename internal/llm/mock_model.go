package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockResponse 定义MockChatModel的单次预期响应
type MockResponse struct {
	Content string
	Error   error
}

// MockChatModel 测试用的 model.ChatModel 模拟实现，
// 按顺序返回预置响应并记录收到的消息。
type MockChatModel struct {
	mu               sync.Mutex
	responses        []MockResponse
	responseIndex    int
	ReceivedMessages [][]*schema.Message
}

// NewMockChatModel 创建返回固定响应序列的模拟模型
func NewMockChatModel(responses ...MockResponse) *MockChatModel {
	return &MockChatModel{responses: responses}
}

// Generate 模拟LLM的Generate方法
func (m *MockChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	received := make([]*schema.Message, len(input))
	copy(received, input)
	m.ReceivedMessages = append(m.ReceivedMessages, received)

	if m.responseIndex >= len(m.responses) {
		return nil, errors.New("mock模型的预置响应已用尽")
	}
	resp := m.responses[m.responseIndex]
	m.responseIndex++

	if resp.Error != nil {
		return nil, resp.Error
	}
	return schema.AssistantMessage(resp.Content, nil), nil
}

// Stream 模拟LLM的Stream方法，不支持流式
func (m *MockChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("MockChatModel 不支持流式调用")
}

// BindTools 模拟绑定工具
func (m *MockChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

// CallCount 返回Generate被调用的次数
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ReceivedMessages)
}

var _ model.ChatModel = (*MockChatModel)(nil)
