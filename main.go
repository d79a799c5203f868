package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

func main() {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:   "photo-reconcile",
		Short: "Reconcile years of accumulated photos and videos into a dated library",
		Long: `photo-reconcile ingests heterogeneous photo/video collections, infers a
capture date for each file, reorganizes everything into date-bucketed
folders, removes byte-identical duplicates and back-fills missing GPS
positions from a curated timeline and known place names.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			} else {
				log.SetLevel(logrus.InfoLevel)
			}
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "JSON settings file overlaying the defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newRunCommand(&configPath))
	rootCmd.AddCommand(newDedupeCommand(&configPath))
	rootCmd.AddCommand(newReportCommand(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCommand(configPath *string) *cobra.Command {
	var (
		sources    []string
		workers    int64
		delta      bool
		dryRun     bool
		assumeYes  bool
		deleteDups bool
	)
	cmd := &cobra.Command{
		Use:   "run [flags] <target>",
		Short: "Run the full pipeline: copy, dedupe, back-fill locations, snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(*configPath)
			if err != nil {
				return err
			}
			settings.TargetDir = args[0]
			if len(sources) > 0 {
				settings.SourceDirs = sources
			}
			if workers > 0 {
				settings.MaxParallel = workers
			}
			if cmd.Flags().Changed("delete-duplicates") {
				settings.DeleteDuplicates = deleteDups
			}
			return runPipeline(settings, delta, dryRun, assumeYes)
		},
	}
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "source folder to ingest (repeatable)")
	cmd.Flags().Int64Var(&workers, "workers", 0, "max concurrent per-file operations")
	cmd.Flags().BoolVar(&delta, "delta", false, "process only files not in the previous run's snapshot")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview only, no files will be modified")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the interactive confirmation")
	cmd.Flags().BoolVar(&deleteDups, "delete-duplicates", false, "delete duplicates instead of quarantining them")
	return cmd
}

func newDedupeCommand(configPath *string) *cobra.Command {
	var deleteDups bool
	cmd := &cobra.Command{
		Use:   "dedupe <directory>",
		Short: "Resolve byte-identical duplicates among siblings of each directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(*configPath)
			if err != nil {
				return err
			}
			settings.DeleteDuplicates = deleteDups

			cm := NewCancellationManager()
			limiter := NewLimiter(settings.MaxParallel)
			provider := NewFileProvider(settings, log)
			resolver := NewDuplicateResolver(settings, log, provider, limiter)

			quarantine := filepath.Join(args[0], settings.DuplicatesFolderName)
			count, err := resolver.Resolve(cm.Context(), args[0], quarantine)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Resolved %d duplicates\n", count)

			reports := NewReportWriter(settings, log, args[0])
			if err := reports.WriteDuplicates(resolver.Resolved()); err != nil {
				log.WithError(err).Warn("Unable to write duplicates report")
			}
			_, err = cleanupEmptyDirectories(args[0])
			return err
		},
	}
	cmd.Flags().BoolVar(&deleteDups, "delete-duplicates", false, "delete duplicates instead of quarantining them")
	return cmd
}

func newReportCommand(configPath *string) *cobra.Command {
	var passName string
	cmd := &cobra.Command{
		Use:   "report <directory>",
		Short: "Write the missing-location report without modifying any file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(*configPath)
			if err != nil {
				return err
			}
			cm := NewCancellationManager()
			limiter := NewLimiter(settings.MaxParallel)
			provider := NewFileProvider(settings, log)
			meta := NewExifMetadata(log)
			resolver := NewDateResolver(settings, log)
			timeline := NewTimeline(log)
			reports := NewReportWriter(settings, log, args[0])
			reconciler := NewLocationReconciler(settings, log, provider, meta, meta, resolver, timeline, limiter, reports)

			_, err = reconciler.ReportMissing(cm.Context(), args[0], passName, true)
			return err
		},
	}
	cmd.Flags().StringVar(&passName, "pass", "report", "pass name prefix for the report files")
	return cmd
}

// runPipeline is the full reconciliation sequence: ingest every source
// into the target, dedupe, back-fill locations in three passes and
// persist the run snapshot.
func runPipeline(settings Settings, delta, dryRun, assumeYes bool) error {
	if len(settings.SourceDirs) == 0 {
		log.Fatal("No source folders configured; use --source or the config file")
	}
	for _, source := range settings.SourceDirs {
		if _, err := os.Stat(source); os.IsNotExist(err) {
			log.Fatalf("Source path does not exist: %s", source)
		}
	}

	target := settings.TargetDir
	cm := NewCancellationManager()

	// A full run rebuilds the target from scratch. That deletes a tree
	// the operator may care about, so it is the one interactive pause.
	if !delta && !dryRun {
		if _, err := os.Stat(target); err == nil {
			if !assumeYes && !confirmOperation("run", strings.Join(settings.SourceDirs, ", "), target) {
				fmt.Println("❌ Operation cancelled by user.")
				os.Exit(0)
			}
			log.WithField("target", target).Info("Deleting target tree")
			if err := os.RemoveAll(target); err != nil {
				log.Fatalf("Failed to delete target: %v", err)
			}
		}
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		log.Fatalf("Failed to create target: %v", err)
	}

	limiter := NewLimiter(settings.MaxParallel)
	provider := NewFileProvider(settings, log)
	meta := NewExifMetadata(log)
	resolver := NewDateResolver(settings, log)
	namer := NewFileNamer(settings, log)
	timeline := NewTimeline(log)
	reports := NewReportWriter(settings, log, target)
	runData := NewRunDataTracker(settings, log)

	// Auxiliary inputs: each is optional, each gets backed up next to the
	// output so a later look at the library shows what it was built from.
	haveKnownLocations, haveTimeline := false, false
	if settings.CleanDirListFile != "" {
		if err := namer.LoadCleanDirList(settings.CleanDirListFile); err != nil {
			log.WithError(err).Error("Unable to load clean-dir list")
		} else {
			backupInputFile(settings, target, settings.CleanDirListFile)
		}
	}
	if settings.TimelineFile != "" {
		if err := timeline.LoadTimeline(settings.TimelineFile); err != nil {
			log.WithError(err).Error("Unable to load timeline")
		} else {
			haveTimeline = true
			backupInputFile(settings, target, settings.TimelineFile)
		}
	}
	if settings.KnownLocationsFile != "" {
		if err := timeline.LoadKnownLocations(settings.KnownLocationsFile); err != nil {
			log.WithError(err).Error("Unable to load known locations")
		} else {
			haveKnownLocations = true
			backupInputFile(settings, target, settings.KnownLocationsFile)
		}
	}

	if delta {
		metaFolder := filepath.Join(target, settings.MetadataFolderName)
		skip, err := runData.ReadFromDisk(metaFolder)
		if err != nil {
			// Without a snapshot there is no safe answer to "new since
			// when"; refusing is the only correct move.
			log.Fatalf("Delta mode requires a previous run snapshot: %v", err)
		}
		provider.SetSkipList(skip)
	}

	copier := NewMediaCopier(settings, log, provider, resolver, namer, meta, meta, limiter, runData)
	copier.DryRun = dryRun

	fmt.Println("📸 Step 1: Copying and classifying media...")
	for _, source := range settings.SourceDirs {
		stats, err := copier.Copy(cm.Context(), source, target)
		if err != nil {
			return err
		}
		fmt.Printf("   %s: %d pictures, %d videos, %d whatsapp, %d invalid, %d failed\n",
			source, stats.Pictures, stats.Videos, stats.WhatsApp, stats.Invalid, stats.Failed)
	}
	if dryRun {
		fmt.Println("🔍 DRY RUN complete - nothing was modified")
		return nil
	}

	fmt.Println("🔁 Step 2: Resolving duplicates...")
	dedupe := NewDuplicateResolver(settings, log, provider, limiter)
	quarantine := filepath.Join(target, settings.DuplicatesFolderName)
	duplicateCount, err := dedupe.Resolve(cm.Context(), target, quarantine)
	if err != nil {
		return err
	}
	fmt.Printf("   Resolved %d duplicates\n", duplicateCount)
	if err := reports.WriteDuplicates(dedupe.Resolved()); err != nil {
		log.WithError(err).Warn("Unable to write duplicates report")
	}
	if _, err := cleanupEmptyDirectories(target); err != nil {
		log.WithError(err).Warn("Unable to clean up empty directories")
	}

	fmt.Println("📍 Step 3: Back-filling locations...")
	reconciler := NewLocationReconciler(settings, log, provider, meta, meta, resolver, timeline, limiter, reports)
	if _, err := reconciler.ReportMissing(cm.Context(), target, "before", true); err != nil {
		return err
	}
	for _, writer := range reconciler.Writers() {
		switch writer.Name() {
		case "FromFileName":
			if !haveKnownLocations {
				continue
			}
		case "FromTimeline":
			if !haveTimeline {
				continue
			}
		}
		report, err := reconciler.ReportMissing(cm.Context(), target, writer.Name(), false)
		if err != nil {
			return err
		}
		count, err := writer.Fill(cm.Context(), report)
		if err != nil {
			return err
		}
		fmt.Printf("   %s: filled %d files\n", writer.Name(), count)
	}
	if _, err := reconciler.ReportMissing(cm.Context(), target, "after", true); err != nil {
		return err
	}

	fmt.Println("🏷️  Step 4: Writing path words as keyword tags...")
	tagger := NewTagger(settings, log, provider, meta, meta, limiter)
	if _, err := tagger.BuildTagList(target); err != nil {
		return err
	}
	tagged, err := tagger.Apply(cm.Context(), target)
	if err != nil {
		return err
	}
	fmt.Printf("   Tagged %d pictures\n", tagged)

	fmt.Println("💾 Step 5: Writing run snapshot...")
	if _, err := runData.WriteToDisk(target); err != nil {
		return err
	}
	fmt.Printf("✅ Done. %d files recorded for the next delta run.\n", runData.FileCount())
	return nil
}

// backupInputFile copies an auxiliary input next to the output tree.
func backupInputFile(settings Settings, target, path string) {
	backupDir := filepath.Join(target, settings.InputBackupFolderName)
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		log.WithError(err).Warn("Unable to create input backup folder")
		return
	}
	if err := copyFile(path, filepath.Join(backupDir, filepath.Base(path))); err != nil {
		log.WithError(err).WithField("file", path).Warn("Unable to back up input file")
	}
}

// confirmOperation prompts the user to confirm the operation before the
// target tree is deleted and rebuilt.
func confirmOperation(command, sourcePath, destPath string) bool {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  📋 OPERATION CONFIRMATION\n")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("Command: %s\n", strings.ToUpper(command))
	if sourcePath != "" {
		fmt.Printf("Source:  %s\n", sourcePath)
	}
	if destPath != "" {
		fmt.Printf("Target:  %s\n", destPath)
	}
	fmt.Printf("Mode:    ⚠️  LIVE RUN (the target tree will be DELETED and rebuilt)\n")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Print("Continue with this operation? [y/N]: ")

	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
