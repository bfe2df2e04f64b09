// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// outputFlags are shared by every listing command.
func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, csv or markdown",
			Value:   "text",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "migrations",
				Usage:  "Show applied and pending migrations",
				Action: r.SetupMigrations,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:    "youtube",
				Aliases: []string{"yt"},
				Usage:   "Authorize read-only YouTube access with OAuth2 and save the token",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the consent URL instead of opening a browser",
					},
				},
				Action: r.AuthYouTube,
			},
		},
	}
}

// channelsCommand manages subscribed channels
func channelsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "channels",
		Aliases: []string{"ch"},
		Usage:   "Manage subscribed channels",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Subscribe to a channel by UC id, @handle or URL and queue its first sync",
				ArgsUsage: "<channel>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ref"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "folder",
						Usage: "Folder ID to place the channel in",
					},
				},
				Action: r.ChannelsAdd,
			},
			{
				Name:  "list",
				Usage: "List channels with their sync state",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:  "folder",
						Usage: "Only channels in this folder",
					},
					&cli.BoolFlag{
						Name:  "favorites",
						Usage: "Only favorited channels",
					},
					&cli.BoolFlag{
						Name:  "unreachable",
						Usage: "Only channels the source reported as gone",
					},
				),
				Action: r.ChannelsList,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Unsubscribe and delete the channel with its videos and playlists",
				ArgsUsage: "<channel>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ref"},
				},
				Action: r.ChannelsRemove,
			},
			{
				Name:      "refresh",
				Usage:     "Request a manual refresh of a channel",
				ArgsUsage: "<channel>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ref"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "now",
						Usage: "Run the refresh in this process instead of queueing it",
					},
				},
				Action: r.ChannelsRefresh,
			},
			{
				Name:      "favorite",
				Usage:     "Mark a channel as favorite",
				ArgsUsage: "<channel>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ref"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "off",
						Usage: "Remove the favorite mark",
					},
				},
				Action: r.ChannelsFavorite,
			},
			{
				Name:      "move",
				Usage:     "Move a channel into a folder, or out of any folder when none is given",
				ArgsUsage: "<channel> [folder]",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "ref"},
					&cli.StringArg{Name: "folder"},
				},
				Action: r.ChannelsMove,
			},
		},
	}
}

// foldersCommand manages channel folders
func foldersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "folders",
		Usage: "Organize channels into folders",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a folder",
				ArgsUsage: "<name>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "parent",
						Usage: "Parent folder ID",
					},
				},
				Action: r.FoldersCreate,
			},
			{
				Name:   "list",
				Usage:  "List folders",
				Flags:  outputFlags(),
				Action: r.FoldersList,
			},
			{
				Name:      "rename",
				Usage:     "Rename a folder",
				ArgsUsage: "<folder id> <name>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "folder"},
					&cli.StringArg{Name: "name"},
				},
				Action: r.FoldersRename,
			},
			{
				Name:      "delete",
				Usage:     "Delete a folder; its channels stay subscribed",
				ArgsUsage: "<folder id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "folder"},
				},
				Action: r.FoldersDelete,
			},
		},
	}
}

// tagsCommand manages video tags
func tagsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "Label videos with tags",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a tag",
				ArgsUsage: "<name>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Action: r.TagsCreate,
			},
			{
				Name:      "attach",
				Usage:     "Attach a tag to a video, creating the tag if needed",
				ArgsUsage: "<tag> <video id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "tag"},
					&cli.StringArg{Name: "video"},
				},
				Action: r.TagsAttach,
			},
			{
				Name:      "detach",
				Usage:     "Remove a tag from a video",
				ArgsUsage: "<tag> <video id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "tag"},
					&cli.StringArg{Name: "video"},
				},
				Action: r.TagsDetach,
			},
			{
				Name:   "list",
				Usage:  "List tags",
				Flags:  outputFlags(),
				Action: r.TagsList,
			},
		},
	}
}

// videosCommand browses and marks videos
func videosCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "videos",
		Usage: "Browse and mark synced videos",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List videos, newest first",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:  "channel",
						Usage: "Only videos of this channel (ID or UC id)",
					},
					&cli.StringFlag{
						Name:  "tag",
						Usage: "Only videos with this tag",
					},
					&cli.BoolFlag{
						Name:  "shorts",
						Usage: "Only shorts",
					},
					&cli.BoolFlag{
						Name:  "no-shorts",
						Usage: "Exclude shorts",
					},
					&cli.BoolFlag{
						Name:  "deleted",
						Usage: "Include deleted videos",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of videos",
						Value: 50,
					},
				),
				Action: r.VideosList,
			},
			{
				Name:      "delete",
				Usage:     "Delete a video; later syncs will not bring it back",
				ArgsUsage: "<video id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "video"},
				},
				Action: r.VideosDelete,
			},
			{
				Name:      "watched",
				Usage:     "Mark a video as watched",
				ArgsUsage: "<video id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "video"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "off",
						Usage: "Mark as unwatched",
					},
				},
				Action: r.VideosWatched,
			},
			{
				Name:      "favorite",
				Usage:     "Mark a video as favorite",
				ArgsUsage: "<video id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "video"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "off",
						Usage: "Remove the favorite mark",
					},
				},
				Action: r.VideosFavorite,
			},
		},
	}
}

// playlistsCommand reads playlists and curates manual ones
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Browse and curate playlists",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List playlists",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:  "channel",
						Usage: "Only system playlists mirrored from this channel",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "manual or system",
					},
				),
				Action: r.PlaylistsList,
			},
			{
				Name:      "items",
				Usage:     "List the videos of a playlist in order",
				ArgsUsage: "<playlist id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:    "export",
						Aliases: []string{"o"},
						Usage:   "Write the playlist to this directory instead of stdout",
					},
				),
				Action: r.PlaylistsItems,
			},
			{
				Name:      "create",
				Usage:     "Create a manual playlist",
				ArgsUsage: "<title>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "title"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "description",
						Usage: "Playlist description",
					},
				},
				Action: r.PlaylistsCreate,
			},
			{
				Name:      "add",
				Usage:     "Append a video to a manual playlist",
				ArgsUsage: "<playlist id> <video id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
					&cli.StringArg{Name: "video"},
				},
				Action: r.PlaylistsAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a video from a manual playlist",
				ArgsUsage: "<playlist id> <video id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
					&cli.StringArg{Name: "video"},
				},
				Action: r.PlaylistsRemove,
			},
			{
				Name:      "delete",
				Usage:     "Delete a manual playlist",
				ArgsUsage: "<playlist id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Action: r.PlaylistsDelete,
			},
		},
	}
}

// syncCommand runs and inspects background synchronization
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Background synchronization",
		Commands: []*cli.Command{
			{
				Name:  "worker",
				Usage: "Run the worker pool, the scheduled sweep and the health endpoint",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Worker count (default: sync.workers)",
					},
					&cli.StringFlag{
						Name:  "queue",
						Usage: "Queue backend: sqlite or memory (default: queue.backend)",
					},
					&cli.BoolFlag{
						Name:  "no-sweep",
						Usage: "Do not schedule the periodic sweep",
					},
					&cli.BoolFlag{
						Name:  "no-server",
						Usage: "Do not serve the health endpoint",
					},
				},
				Action: r.SyncWorker,
			},
			{
				Name:   "sweep",
				Usage:  "Enqueue one staggered refresh for every channel now",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.SyncSweep,
			},
			{
				Name:  "runs",
				Usage: "Show sync history",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:  "channel",
						Usage: "Only runs of this channel (ID or UC id)",
					},
					&cli.StringFlag{
						Name:  "state",
						Usage: "Only runs that ended in this state",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 25,
					},
				),
				Action: r.SyncRuns,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive sync status dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the TUI is open",
				Value: "./tmp/tubesync-tui.log",
			},
		},
		Action: r.TUI,
	}
}
