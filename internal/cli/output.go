// internal/cli/output.go
package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormatter 支持 JSON、静默与人类可读三种输出
type OutputFormatter struct {
	Out   io.Writer
	Err   io.Writer
	JSON  bool
	Quiet bool
}

// Success 输出成功结果；静默模式下只输出 quietValue
func (f *OutputFormatter) Success(data interface{}, quietValue string, human func(w io.Writer)) error {
	if f.Quiet && quietValue != "" {
		_, err := fmt.Fprintln(f.Out, quietValue)
		return err
	}

	if f.JSON {
		return json.NewEncoder(f.Out).Encode(map[string]interface{}{
			"success": true,
			"data":    data,
		})
	}

	human(f.Out)
	return nil
}

// Error 输出错误信息
func (f *OutputFormatter) Error(code, message string) error {
	if f.JSON {
		return json.NewEncoder(f.Out).Encode(map[string]interface{}{
			"success": false,
			"error": map[string]string{
				"code":    code,
				"message": message,
			},
		})
	}

	_, err := fmt.Fprintf(f.Err, "❌ 错误: %s\n", message)
	return err
}
