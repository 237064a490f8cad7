// internal/cli/project.go
package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apperrors "github.com/Corphon/DocDeck/internal/errors"
	"github.com/Corphon/DocDeck/internal/models"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "管理项目",
	}

	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectShowCmd())
	cmd.AddCommand(projectDeleteCmd())

	return cmd
}

func projectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "创建草稿项目",
		Long: `创建一个空主题、无章节的草稿项目。

示例:
  docdeckctl project create --name "季度汇报" --type presentation
  docdeckctl project create --name "设计说明" --type docx --quiet`,
		RunE: runProjectCreate,
	}

	cmd.Flags().String("name", "", "项目名称 (必填)")
	cmd.Flags().String("type", "", "文档类型 presentation|document (必填)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	out := formatter(cmd)
	name, _ := cmd.Flags().GetString("name")
	typeFlag, _ := cmd.Flags().GetString("type")

	docType, err := models.ParseDocType(typeFlag)
	if err != nil {
		_ = out.Error("INVALID_DOC_TYPE", err.Error())
		return err
	}

	rt, err := openRuntime(cmd.Context(), cmd)
	if err != nil {
		_ = out.Error("STORE_UNAVAILABLE", err.Error())
		return err
	}
	defer rt.Close()

	project, err := rt.projects.CreateProject(cmd.Context(), rt.userID, name, docType)
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return err
	}

	return out.Success(project, project.ID, func(w io.Writer) {
		fmt.Fprintf(w, "✅ 已创建项目 %s\n", project.ID)
		fmt.Fprintf(w, "   名称: %s\n", project.Name)
		fmt.Fprintf(w, "   类型: %s\n", project.DocType)
	})
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出当前用户的项目",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd)

			rt, err := openRuntime(cmd.Context(), cmd)
			if err != nil {
				_ = out.Error("STORE_UNAVAILABLE", err.Error())
				return err
			}
			defer rt.Close()

			projects, err := rt.projects.ListProjects(cmd.Context(), rt.userID)
			if err != nil {
				_ = out.Error(errorCode(err), err.Error())
				return err
			}

			if out.Quiet {
				for _, p := range projects {
					fmt.Fprintln(out.Out, p.ID)
				}
				return nil
			}

			return out.Success(projects, "", func(w io.Writer) {
				if len(projects) == 0 {
					fmt.Fprintln(w, "没有项目")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\t名称\t类型\t状态\t章节\t修改时间")
				for _, p := range projects {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
						p.ID, p.Name, p.DocType, p.Status, p.SectionCount,
						p.LastModified.Format("2006-01-02 15:04"))
				}
				_ = tw.Flush()
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "显示项目的主题和章节",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd)

			rt, err := openRuntime(cmd.Context(), cmd)
			if err != nil {
				_ = out.Error("STORE_UNAVAILABLE", err.Error())
				return err
			}
			defer rt.Close()

			project, err := rt.projects.GetProject(cmd.Context(), rt.userID, args[0])
			if err != nil {
				_ = out.Error(errorCode(err), err.Error())
				return err
			}

			return out.Success(project, project.ID, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s, %s)\n", project.Name, project.DocType, project.Status)
				topic := project.Topic
				if topic == "" {
					topic = "(未设置)"
				}
				fmt.Fprintf(w, "主题: %s\n", topic)
				for i, s := range project.Sections {
					fmt.Fprintf(w, "  %d. %s\n", i+1, s.Title)
				}
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "删除项目",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd)

			rt, err := openRuntime(cmd.Context(), cmd)
			if err != nil {
				_ = out.Error("STORE_UNAVAILABLE", err.Error())
				return err
			}
			defer rt.Close()

			if err := rt.projects.DeleteProject(cmd.Context(), rt.userID, args[0]); err != nil {
				_ = out.Error(errorCode(err), err.Error())
				return err
			}

			return out.Success(map[string]string{"id": args[0]}, args[0], func(w io.Writer) {
				fmt.Fprintf(w, "🗑️  已删除项目 %s\n", args[0])
			})
		},
	}
}

func errorCode(err error) string {
	switch {
	case apperrors.IsValidationError(err):
		return "VALIDATION_ERROR"
	case apperrors.IsNotFoundError(err):
		return "PROJECT_NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}
