package main

import (
	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/filter"
	"github.com/clemv/mritrack/internal/history"
	"github.com/clemv/mritrack/internal/util"
)

var setCmd = &cobra.Command{
	Use:   "set <document> <tag> <value>",
	Short: "Set a tag value on a tracked scan",
	Long: `Write a tag value on one scan in the current collection. The initial
value recorded at import time is untouched and stays available through
'mrt tag reset'.

Values are parsed according to the tag's type; list and mapping tags
take JSON, temporal tags take their canonical layout and 'null' clears
the value:

  mrt set data/raw_data/sub01_T1.nii PatientWeight 72.5
  mrt set data/raw_data/sub01_T1.nii BandWidth '[50000]'
  mrt set data/raw_data/sub01_T1.nii Grade null`,
	Args: cobra.ExactArgs(3),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	doc, name, input := args[0], args[1], args[2]

	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	var t database.FieldType
	err = db.WithSession(true, func(s *database.Session) error {
		f, err := s.GetFieldAttributes(database.CollectionCurrent, name)
		if err != nil {
			return err
		}
		t = f.Type

		value, err := parseTagValue(f.Type, input)
		if err != nil {
			return err
		}
		if value != database.NotDefined {
			if value, err = database.Coerce(f.Type, value); err != nil {
				return err
			}
		}

		old, err := s.GetValue(database.CollectionCurrent, doc, name)
		if err != nil {
			return err
		}
		if database.ValuesEqual(f.Type, old, value) {
			return nil
		}

		if value == database.NotDefined {
			if err := s.RemoveValue(database.CollectionCurrent, doc, name); err != nil {
				return err
			}
		} else {
			if err := s.SetValue(database.CollectionCurrent, doc, name, value); err != nil {
				return err
			}
		}

		return history.NewManager().Record(s, history.ModifiedValues{Changes: []history.ValueChange{{
			Document: doc,
			Field:    name,
			Type:     f.Type,
			Old:      serializeOrNil(f.Type, old),
			New:      serializeOrNil(f.Type, value),
		}}})
	})
	if err != nil {
		return err
	}

	util.SuccessLog("%s = %s on %s", name, displayInput(t, input), doc)
	return nil
}

func displayInput(t database.FieldType, input string) string {
	if input == "null" {
		return "*Not Defined*"
	}
	v, err := parseTagValue(t, input)
	if err != nil || v == database.NotDefined {
		return input
	}
	return filter.DisplayString(t, v)
}
