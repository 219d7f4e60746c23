package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// CalculatorTool performs basic arithmetic. Mainly useful for demos
// and tests of the tool-calling path.
type CalculatorTool struct {
	BaseTool
}

// NewCalculatorTool creates a calculator tool.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

type calculatorArgs struct {
	Operation string  `json:"operation"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

// Metadata returns tool metadata.
func (t *CalculatorTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "calculator",
		Description: "Performs basic arithmetic: add, subtract, multiply, divide, power",
		Parameters: []ToolParameter{
			{Name: "operation", ParamType: "string", Description: "One of: add, subtract, multiply, divide, power", Required: true},
			{Name: "a", ParamType: "number", Description: "First operand", Required: true},
			{Name: "b", ParamType: "number", Description: "Second operand", Required: true},
		},
	}
}

// Validate checks the operation is supported.
func (t *CalculatorTool) Validate(args json.RawMessage) error {
	var parsed calculatorArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	switch parsed.Operation {
	case "add", "subtract", "multiply", "divide", "power":
		return nil
	default:
		return fmt.Errorf("unsupported operation: %q", parsed.Operation)
	}
}

// Execute performs the arithmetic.
func (t *CalculatorTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var parsed calculatorArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse arguments: %w", err)
	}

	var value float64
	switch parsed.Operation {
	case "add":
		value = parsed.A + parsed.B
	case "subtract":
		value = parsed.A - parsed.B
	case "multiply":
		value = parsed.A * parsed.B
	case "divide":
		if parsed.B == 0 {
			return "", fmt.Errorf("division by zero")
		}
		value = parsed.A / parsed.B
	case "power":
		value = math.Pow(parsed.A, parsed.B)
	default:
		return "", fmt.Errorf("unsupported operation: %q", parsed.Operation)
	}

	return strconv.FormatFloat(value, 'f', -1, 64), nil
}

// Verify CalculatorTool implements Tool
var _ Tool = (*CalculatorTool)(nil)
