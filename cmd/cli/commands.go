package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/db"
	"github.com/nickyhof/VersionDB/ps"
	"github.com/spf13/cobra"
)

const timeLayout = time.RFC3339

func (c *cli) repo() *db.VersionedRepo {
	return c.instance.Repo
}

func (c *cli) putCommand() *cobra.Command {
	var (
		file        string
		message     string
		perspective string
		mustBeNew   bool
	)
	cmd := &cobra.Command{
		Use:   "put KEY [VALUE]",
		Short: "Write a document",
		Long: `Write a document in its own commit.

The value is taken from the argument, from --file, or from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value []byte
			var err error
			switch {
			case len(args) == 2:
				value = []byte(args[1])
			case file != "":
				value, err = os.ReadFile(file)
			default:
				value, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			result, err := c.repo().AddDocumentsIn(cmd.Context(), perspective, map[string][]byte{args[0]: value}, c.user, message, mustBeNew)
			if err != nil {
				return err
			}
			result.Display(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the value from a file")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit comment")
	cmd.Flags().StringVarP(&perspective, "perspective", "p", core.OfficialPerspective, "perspective to write to")
	cmd.Flags().BoolVar(&mustBeNew, "new", false, "fail if the document exists")
	return cmd
}

// directiveFlags selects a historical commit for read commands.
type directiveFlags struct {
	version int64
	asOf    string
	commit  string
}

func (f *directiveFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.version, "version", -1, "read as of this version")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "read as of this time ("+timeLayout+")")
	cmd.Flags().StringVar(&f.commit, "commit", "", "read at this commit")
}

func (f *directiveFlags) directive() (db.Directive, error) {
	switch {
	case f.commit != "":
		return db.AtCommit(f.commit), nil
	case f.asOf != "":
		at, err := time.Parse(timeLayout, f.asOf)
		if err != nil {
			return nil, fmt.Errorf("invalid --as-of: %w", err)
		}
		return db.AsOf(at), nil
	case f.version >= 0:
		return db.AsOfVersion(f.version), nil
	default:
		return nil, nil
	}
}

func (c *cli) getCommand() *cobra.Command {
	var (
		flags       directiveFlags
		perspective string
	)
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			directive, err := flags.directive()
			if err != nil {
				return err
			}
			content, ok, err := c.repo().GetDocumentIn(cmd.Context(), perspective, args[0], directive)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", core.ErrNotFound, args[0])
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&perspective, "perspective", "p", core.OfficialPerspective, "perspective to read")
	return cmd
}

func (c *cli) rmCommand() *cobra.Command {
	var (
		folder  bool
		message string
	)
	cmd := &cobra.Command{
		Use:   "rm KEY...",
		Short: "Remove documents or a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result db.CommitResult
			var err error
			if folder {
				if len(args) != 1 {
					return fmt.Errorf("--folder takes exactly one folder")
				}
				result, err = c.repo().RemoveFolder(cmd.Context(), args[0], c.user, message)
			} else {
				result, err = c.repo().RemoveDocuments(cmd.Context(), args, c.user, message)
			}
			if err != nil {
				return err
			}
			result.Display(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&folder, "folder", "r", false, "remove a folder and everything below it")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit comment")
	return cmd
}

func (c *cli) lsCommand() *cobra.Command {
	var (
		flags       directiveFlags
		perspective string
		recursive   bool
	)
	cmd := &cobra.Command{
		Use:   "ls [FOLDER]",
		Short: "List documents and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := ""
			if len(args) == 1 {
				folder = args[0]
			}
			directive, err := flags.directive()
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), "NAME", "TYPE", "SIZE")
			visit := func(name string, content []byte, isFolder bool) bool {
				if isFolder {
					t.row(name+"/", "folder", "")
				} else {
					t.row(name, "document", strconv.Itoa(len(content)))
				}
				return true
			}
			if recursive {
				err = c.repo().VisitAllIn(cmd.Context(), perspective, folder, directive, visit)
			} else {
				err = c.repo().VisitFolderIn(cmd.Context(), perspective, folder, directive, visit)
			}
			if err != nil {
				return err
			}
			t.render()
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&perspective, "perspective", "p", core.OfficialPerspective, "perspective to list")
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "list everything below the folder")
	return cmd
}

func (c *cli) logCommand() *cobra.Command {
	var (
		perspective string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, err := c.repo().GetCommitHistory(cmd.Context(), perspective, limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), history)
			return nil
		},
	}
	cmd.Flags().StringVarP(&perspective, "perspective", "p", core.OfficialPerspective, "perspective to show")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits")
	return cmd
}

func renderHistory(w io.Writer, history []ps.Transaction) {
	t := newTable(w, "VERSION", "COMMIT", "WHEN", "AUTHOR", "CHANGES", "COMMENT")
	for _, tx := range history {
		t.row(
			strconv.FormatInt(tx.Version, 10),
			shortRef(tx.Id),
			tx.When.UTC().Format(timeLayout),
			tx.Author,
			strconv.Itoa(len(tx.Changes)),
			tx.Comment,
		)
	}
	t.render()
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}

func (c *cli) tagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags",
	}

	var perspective string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Tag the latest commit of a perspective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := c.repo().CreateTag(cmd.Context(), args[0], perspective, c.user)
			if err != nil {
				return err
			}
			c.success("Tagged %s as %s", shortRef(tag.CommitRef), args[0])
			return nil
		},
	}
	create.Flags().StringVarP(&perspective, "perspective", "p", core.OfficialPerspective, "perspective to tag")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := c.repo().GetTags(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), "TAG", "COMMIT", "PERSPECTIVE", "OWNER", "WHEN")
			for _, name := range names {
				tag, err := c.repo().GetTag(cmd.Context(), name)
				if err != nil {
					return err
				}
				t.row(name, shortRef(tag.CommitRef), tag.Perspective, tag.Owner, tag.When.UTC().Format(timeLayout))
			}
			t.render()
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show NAME [KEY]",
		Short: "List a tag's documents or print one of them",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				content, ok, err := c.repo().GetTagDocument(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", core.ErrNotFound, args[1])
				}
				_, err = cmd.OutOrStdout().Write(content)
				return err
			}
			t := newTable(cmd.OutOrStdout(), "PATH", "SIZE")
			err := c.repo().VisitTag(cmd.Context(), args[0], "", func(name string, content []byte, isFolder bool) bool {
				if !isFolder {
					t.row(name, strconv.Itoa(len(content)))
				}
				return true
			})
			if err != nil {
				return err
			}
			t.render()
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "rm NAME",
		Short: "Remove a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.repo().RemoveTag(cmd.Context(), args[0]); err != nil {
				return err
			}
			c.success("Removed tag %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, list, show, remove)
	return cmd
}

func (c *cli) perspectiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "perspective",
		Aliases: []string{"p"},
		Short:   "Manage perspectives",
	}

	var from, description string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Start a perspective at the latest commit of another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.repo().CreatePerspective(cmd.Context(), args[0], from, c.user, description)
			if err != nil {
				return err
			}
			c.success("Created perspective %s at %s", args[0], shortRef(p.LatestCommit))
			return nil
		},
	}
	create.Flags().StringVar(&from, "from", core.OfficialPerspective, "perspective to start from")
	create.Flags().StringVarP(&description, "description", "d", "", "description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List perspectives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := c.repo().ListPerspectives(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), "PERSPECTIVE", "LATEST", "BASE", "OWNER", "DESCRIPTION")
			for _, name := range names {
				p, err := c.repo().GetPerspective(cmd.Context(), name)
				if err != nil {
					return err
				}
				t.row(name, shortRef(p.LatestCommit), shortRef(p.BaseCommit), p.Owner, p.Description)
			}
			t.render()
			return nil
		},
	}

	var into string
	merge := &cobra.Command{
		Use:   "merge SOURCE",
		Short: "Replay a perspective's commits onto another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.repo().MergePerspective(cmd.Context(), into, args[0], c.user)
			if err != nil {
				return err
			}
			result.Display(cmd.OutOrStdout())
			return nil
		},
	}
	merge.Flags().StringVar(&into, "into", core.OfficialPerspective, "target perspective")

	remove := &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a perspective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.repo().DeletePerspective(cmd.Context(), args[0]); err != nil {
				return err
			}
			c.success("Deleted perspective %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, list, merge, remove)
	return cmd
}

func (c *cli) commentaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Attach and read audit notes",
	}

	add := &cobra.Command{
		Use:   "add KEY MESSAGE",
		Short: "Attach a note to a document or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := c.repo().AddCommentary(cmd.Context(), args[0], c.user, args[1])
			if err != nil {
				return err
			}
			c.success("Added note %s", shortRef(ref))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list KEY",
		Short: "List the notes of a document or folder, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := c.repo().GetCommentary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), "WHEN", "USER", "MESSAGE")
			for _, note := range notes {
				t.row(note.When.UTC().Format(timeLayout), note.User, note.Message)
			}
			t.render()
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func (c *cli) archiveCommand() *cobra.Command {
	var (
		keep        int
		before      string
		ensure      bool
		perspective string
	)
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Delete old versions",
		Long: `Delete old commits and the content only they reference.

The newest --keep commits are kept. With --before, older commits inside
that window are archived too unless --ensure-version-limit is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var timeLimit time.Time
			if before != "" {
				var err error
				if timeLimit, err = time.Parse(timeLayout, before); err != nil {
					return fmt.Errorf("invalid --before: %w", err)
				}
			}
			archived, err := c.repo().ArchivePerspectiveVersions(cmd.Context(), perspective, keep, timeLimit, ensure, c.user)
			if err != nil {
				return err
			}
			if archived {
				c.success("Archived old versions of %s", perspective)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to archive")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "number of commits to keep")
	cmd.Flags().StringVar(&before, "before", "", "archive commits older than this time ("+timeLayout+")")
	cmd.Flags().BoolVar(&ensure, "ensure-version-limit", false, "always keep --keep commits")
	cmd.Flags().StringVarP(&perspective, "perspective", "p", core.OfficialPerspective, "perspective to archive")
	return cmd
}

func (c *cli) exportGitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export-git DIR",
		Short: "Mirror every perspective and tag into a git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := ps.OpenGitRepository(args[0])
			if err != nil {
				return err
			}
			if err := c.repo().ExportGit(cmd.Context(), repo); err != nil {
				return err
			}
			c.success("Exported to %s", args[0])
			return nil
		},
	}
}
