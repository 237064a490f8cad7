// internal/cli/variants.go
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Corphon/DocDeck/internal/services"
)

func variantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variants",
		Short: "列出配置界面变体及默认章节",
		Long: `读取并校验变体目录。可用于在部署前检查自定义 VARIANTS_FILE。

示例:
  docdeckctl variants
  docdeckctl variants --variants-file ./variants.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd)
			path, _ := cmd.Flags().GetString("variants-file")

			catalog, err := services.LoadVariantCatalog(path)
			if err != nil {
				_ = out.Error("INVALID_VARIANTS", err.Error())
				return err
			}

			variants := catalog.List()
			if out.Quiet {
				for _, v := range variants {
					fmt.Fprintln(out.Out, v.Kind)
				}
				return nil
			}

			return out.Success(variants, "", func(w io.Writer) {
				for _, v := range variants {
					fmt.Fprintf(w, "%s: %s\n", v.Kind, v.Title)
					for i, s := range v.Defaults {
						fmt.Fprintf(w, "  %d. %s\n", i+1, s.Title)
					}
				}
			})
		},
	}

	cmd.Flags().String("variants-file", "", "变体 YAML 文件 (默认使用内置目录)")

	return cmd
}
