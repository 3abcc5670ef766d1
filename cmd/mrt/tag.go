package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/filter"
	"github.com/clemv/mritrack/internal/history"
	"github.com/clemv/mritrack/internal/util"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage the tags of the project",
	Long: `Declare, remove, clone and inspect tags. Tags are typed attributes
attached to every tracked scan; user-declared tags can carry a default
value applied to newly imported scans.

Every mutation is one undo step.`,
}

var tagAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Declare a new tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagAdd,
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a user tag and its values",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagRemove,
}

var tagCloneCmd = &cobra.Command{
	Use:   "clone <source> <new-name>",
	Short: "Declare a new tag as a copy of another, values included",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagClone,
}

var tagResetCmd = &cobra.Command{
	Use:   "reset <document> <name>",
	Short: "Restore a tag value to what the import recorded",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagReset,
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the declared tags",
	Args:  cobra.NoArgs,
	RunE:  runTagList,
}

var tagShowCmd = &cobra.Command{
	Use:   "show <name>...",
	Short: "Make tags visible in search output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTagVisibility(args, true)
	},
}

var tagHideCmd = &cobra.Command{
	Use:   "hide <name>...",
	Short: "Hide tags from search output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTagVisibility(args, false)
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagAddCmd, tagRemoveCmd, tagCloneCmd, tagResetCmd, tagListCmd, tagShowCmd, tagHideCmd)

	tagAddCmd.Flags().String("type", "string", "value type (string, int, float, boolean, date, datetime, time, list_<scalar>, mapping)")
	tagAddCmd.Flags().String("description", "", "what the tag means")
	tagAddCmd.Flags().String("unit", "", "unit of the value")
	tagAddCmd.Flags().String("default", "", "default value applied to newly imported scans")
	tagAddCmd.Flags().Bool("hidden", false, "do not show the tag in search output")
}

func runTagAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	typeName, _ := cmd.Flags().GetString("type")
	description, _ := cmd.Flags().GetString("description")
	unit, _ := cmd.Flags().GetString("unit")
	defaultText, _ := cmd.Flags().GetString("default")
	hidden, _ := cmd.Flags().GetBool("hidden")

	t := database.FieldType(typeName)
	if !t.Valid() {
		return fmt.Errorf("unknown tag type %q", typeName)
	}

	var def any
	if defaultText != "" {
		parsed, err := parseTagValue(t, defaultText)
		if err != nil {
			return fmt.Errorf("invalid default: %w", err)
		}
		if parsed != database.NotDefined {
			def = parsed
		}
	}

	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	decl := history.TagDecl{
		Name:        name,
		Type:        t,
		Description: description,
		Unit:        unit,
		Default:     database.Serialize(t, def),
		Visibility:  !hidden,
	}

	err = db.WithSession(true, func(s *database.Session) error {
		for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
			if err := s.AddField(database.Field{
				Collection:  coll,
				Name:        name,
				Type:        t,
				Description: description,
				Unit:        unit,
				Default:     def,
				Visibility:  !hidden,
				Origin:      database.OriginUser,
			}); err != nil {
				return err
			}
		}
		return history.NewManager().Record(s, history.AddTag{Tag: decl})
	})
	if err != nil {
		return err
	}

	util.SuccessLog("Tag %s (%s) declared", name, t)
	return nil
}

func runTagRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.WithSession(true, func(s *database.Session) error {
		f, err := s.GetFieldAttributes(database.CollectionCurrent, name)
		if err != nil {
			return err
		}
		if f.Origin == database.OriginBuiltin {
			return fmt.Errorf("%w: %s", database.ErrBuiltinField, name)
		}

		values, err := captureTagValues(s, name, f.Type)
		if err != nil {
			return err
		}

		rec := history.RemoveTag{Tag: declOf(f), Values: values}
		for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
			exists, err := s.HasField(coll, name)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if err := s.RemoveField(coll, name); err != nil {
				return err
			}
		}
		return history.NewManager().Record(s, rec)
	})
	if err != nil {
		return err
	}

	util.SuccessLog("Tag %s removed", name)
	return nil
}

func runTagClone(cmd *cobra.Command, args []string) error {
	source, name := args[0], args[1]

	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.WithSession(true, func(s *database.Session) error {
		rec, err := cloneTag(s, source, name)
		if err != nil {
			return err
		}
		return history.NewManager().Record(s, rec)
	})
	if err != nil {
		return err
	}

	util.SuccessLog("Tag %s cloned to %s", source, name)
	return nil
}

// cloneTag declares name as a user copy of source and copies its values
// in both scan collections. A clone always comes out visible, even when
// the source is a hidden importer-declared tag.
func cloneTag(s *database.Session, source, name string) (history.CloneTag, error) {
	src, err := s.GetFieldAttributes(database.CollectionCurrent, source)
	if err != nil {
		return history.CloneTag{}, err
	}

	values, err := captureTagValues(s, source, src.Type)
	if err != nil {
		return history.CloneTag{}, err
	}

	decl := declOf(src)
	decl.Name = name
	decl.Visibility = true

	for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
		if err := s.AddField(database.Field{
			Collection:  coll,
			Name:        name,
			Type:        src.Type,
			Description: src.Description,
			Unit:        src.Unit,
			Default:     src.Default,
			Visibility:  true,
			Origin:      database.OriginUser,
		}); err != nil {
			return history.CloneTag{}, err
		}
	}

	// Copy the captured values onto the fresh tag
	for _, v := range values {
		if v.Current != nil {
			if err := s.SetValue(database.CollectionCurrent, v.Document, name, v.Current); err != nil {
				return history.CloneTag{}, err
			}
		}
		if v.Initial != nil {
			if err := s.SetValue(database.CollectionInitial, v.Document, name, v.Initial); err != nil {
				return history.CloneTag{}, err
			}
		}
	}

	return history.CloneTag{Tag: decl, Source: source, Values: values}, nil
}

func runTagReset(cmd *cobra.Command, args []string) error {
	doc, name := args[0], args[1]

	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.WithSession(true, func(s *database.Session) error {
		f, err := s.GetFieldAttributes(database.CollectionCurrent, name)
		if err != nil {
			return err
		}

		old, err := s.ResetValue(doc, name)
		if err != nil {
			return err
		}
		restored, err := s.GetValue(database.CollectionCurrent, doc, name)
		if err != nil {
			return err
		}

		return history.NewManager().Record(s, history.ModifiedValues{Changes: []history.ValueChange{{
			Document: doc,
			Field:    name,
			Type:     f.Type,
			Old:      serializeOrNil(f.Type, old),
			New:      serializeOrNil(f.Type, restored),
		}}})
	})
	if err != nil {
		return err
	}

	util.SuccessLog("Tag %s of %s reset to its initial value", name, doc)
	return nil
}

func runTagList(cmd *cobra.Command, args []string) error {
	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	var fields []database.Field
	err = db.WithSession(false, func(s *database.Session) error {
		fields, err = s.Fields(database.CollectionCurrent)
		return err
	})
	if err != nil {
		return err
	}

	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Origin != fields[j].Origin {
			return fields[i].Origin < fields[j].Origin
		}
		return fields[i].Name < fields[j].Name
	})

	for _, f := range fields {
		visibility := "hidden"
		if f.Visibility {
			visibility = "shown"
		}
		line := fmt.Sprintf("%-24s %-13s %-7s %s", f.Name, f.Type, f.Origin, visibility)
		if f.Unit != "" {
			line += fmt.Sprintf("  [%s]", f.Unit)
		}
		if f.Default != nil {
			line += fmt.Sprintf("  default=%s", filter.DisplayString(f.Type, f.Default))
		}
		if f.Description != "" {
			line += "  " + f.Description
		}
		fmt.Println(line)
	}
	return nil
}

func setTagVisibility(names []string, visible bool) error {
	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.WithSession(true, func(s *database.Session) error {
		shown, err := s.ShownTags()
		if err != nil {
			return err
		}
		set := make(map[string]bool, len(shown))
		for _, n := range shown {
			set[n] = true
		}
		for _, n := range names {
			exists, err := s.HasField(database.CollectionCurrent, n)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", database.ErrUnknownField, n)
			}
			set[n] = visible
		}

		next := make([]string, 0, len(set))
		for n, v := range set {
			if v {
				next = append(next, n)
			}
		}
		return s.SetShownTags(next)
	})
	if err != nil {
		return err
	}

	state := "hidden"
	if visible {
		state = "shown"
	}
	util.SuccessLog("%d tag(s) now %s", len(names), state)
	return nil
}

// captureTagValues snapshots a tag's serialized values across both scan
// collections, for history records that may need to restore them.
func captureTagValues(s *database.Session, name string, t database.FieldType) ([]history.TagValue, error) {
	names, err := s.DocumentNames(database.CollectionCurrent)
	if err != nil {
		return nil, err
	}

	var values []history.TagValue
	for _, pk := range names {
		cur, err := s.GetValue(database.CollectionCurrent, pk, name)
		if err != nil {
			return nil, err
		}
		var ini any = database.NotDefined
		has, err := s.HasField(database.CollectionInitial, name)
		if err != nil {
			return nil, err
		}
		if has {
			ini, err = s.GetValue(database.CollectionInitial, pk, name)
			if err != nil {
				return nil, err
			}
		}
		if cur == database.NotDefined && ini == database.NotDefined {
			continue
		}
		values = append(values, history.TagValue{
			Document: pk,
			Current:  serializeOrNil(t, cur),
			Initial:  serializeOrNil(t, ini),
		})
	}
	return values, nil
}

// serializeOrNil maps the not-defined sentinel to nil for storage in a
// history record, and serializes everything else
func serializeOrNil(t database.FieldType, v any) any {
	if v == database.NotDefined {
		return nil
	}
	return database.Serialize(t, v)
}

// declOf converts a field declaration into its history record shape
func declOf(f *database.Field) history.TagDecl {
	return history.TagDecl{
		Name:        f.Name,
		Type:        f.Type,
		Description: f.Description,
		Unit:        f.Unit,
		Default:     database.Serialize(f.Type, f.Default),
		Visibility:  f.Visibility,
	}
}
