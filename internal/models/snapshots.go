package models

// Numbered snapshot files of the processed data lineage.
const (
	SnapshotJournalsEmail        = "1_journals_anon_email.csv"
	SnapshotJournalsPreprocessed = "2_journals_preprocessed.csv"
	SnapshotSurveyTotals         = "3_qualtrics_totals.csv"
	SnapshotSurveyMerged         = "qualtrics_merged.csv"
	SnapshotSurveyFlags          = "qualtrics_flags.csv"
	SnapshotContentBoth          = "4_journals_anon_content_both.csv"
	SnapshotContentOnly          = "5_journals_anon_content_only.csv"
	SnapshotUtterances           = "6_anon_utterances.csv"
	SnapshotJournalsCombined     = "7_qual_jour_merged.csv"
	SnapshotJournalsCombinedAnon = "8_qual_jour_merged_anon.csv"
	SnapshotUtterCombined        = "9_qual_utt_merged.csv"
	SnapshotUtterCombinedAnon    = "10_qual_utt_merged_anon.csv"
	SnapshotJournalsQualified    = "11_journals_qualified_for_analysis.csv"
	SnapshotUtterQualified       = "12_utterances_qualified_for_analysis.csv"
	SnapshotParticipantsFinal    = "13_participants_final_filtered.csv"
	SnapshotJournalsFinal        = "14_journals_final_filtered.csv"
	SnapshotUtterFinal           = "15_utterances_final_filtered.csv"
	FinalFilterReport            = "final_filter_report.json"
)

// Files kept in the config directory.
const (
	EmailPIDFile         = "email_pid.json"
	OutcomeByEmailFile   = "study_outcome_by_email.json"
	StudyGroupsByPIDFile = "study_groups_by_pid.json"
)
