package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/spf13/afero"
)

const (
	projectDB    = "gxdb.db"
	productionDB = "gxdb_production.db"
	globalDir    = "Global"

	suiteName   = "geographix"
	driverName  = "SQL Anywhere 17"
	defaultUser = "dba"
	defaultPass = "sql"
)

// ErrRootNotFound is returned when the recon root is not a directory.
var ErrRootNotFound = errors.New("recon root not found")

// Files the database engine touches on connect; they are ignored when
// computing the project modification time.
var engineFiles = regexp.MustCompile(`(?i)^(gxdb\.db|gxdb_production\.db|gxdb\.log)$`)

// Querier runs a batch of statements against one legacy database.
type Querier interface {
	QueryMany(ctx context.Context, conn domain.Conn, stmts []string) ([][]map[string]any, error)
}

// Service finds projects on a filesystem.
type Service struct {
	fs      afero.Fs
	querier Querier
	host    string
	logger  *slog.Logger
}

// NewService creates a Service. host names the machine serving project
// databases when a discover task does not name one.
func NewService(fs afero.Fs, querier Querier, host string, logger *slog.Logger) (*Service, error) {
	if fs == nil {
		return nil, fmt.Errorf("%w: filesystem cannot be nil", domain.ErrValidation)
	}
	if querier == nil {
		return nil, fmt.Errorf("%w: querier cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fs:      fs,
		querier: querier,
		host:    host,
		logger:  logger.With(slog.String("component", "discovery")),
	}, nil
}

// NormalizePath converts backslashes to forward slashes.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// Discover walks body.ReconRoot and returns one repo per project found.
// A project whose database cannot be queried is still returned, without
// well counts.
func (s *Service) Discover(ctx context.Context, body *domain.DiscoverBody) ([]domain.Repo, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	root := NormalizePath(body.ReconRoot)

	if ok, err := afero.DirExists(s.fs, root); err != nil || !ok {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	host := body.GGXHost
	if host == "" {
		host = s.host
	}

	dirs, err := s.findProjects(ctx, root)
	if err != nil {
		return nil, err
	}

	repos := make([]domain.Repo, 0, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		repo := s.describe(dir, host)

		results, err := s.querier.QueryMany(ctx, repo.Conn, countStatements())
		if err != nil {
			log.Warn("failed to count wells",
				slog.String("fs_path", repo.FSPath),
				slog.String("error", err.Error()))
		} else {
			repo.WellCounts = make(map[string]int64, len(wellCounters))
			for i, c := range wellCounters {
				if i < len(results) {
					repo.WellCounts[c.key] = tally(results[i])
				}
			}
		}

		if err := s.stats(ctx, &repo); err != nil {
			return nil, fmt.Errorf("failed to collect stats for %s: %w", repo.FSPath, err)
		}

		log.Debug("found project", slog.String("fs_path", repo.FSPath), slog.String("repo_id", repo.ID))
		repos = append(repos, repo)
	}

	log.Info("discovery finished", slog.String("recon_root", root), slog.Int("repos", len(repos)))
	return repos, nil
}

// findProjects returns every directory below root that holds a project
// database and passes IsProject.
func (s *Service) findProjects(ctx context.Context, root string) ([]string, error) {
	var dirs []string
	err := afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped.
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !strings.EqualFold(info.Name(), projectDB) {
			return nil
		}
		dir := path.Dir(NormalizePath(p))
		if IsProject(s.fs, dir) {
			dirs = append(dirs, dir)
		} else {
			s.logger.Debug("not a project", slog.String("fs_path", dir))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return dirs, nil
}

// IsProject reports whether dir holds both project databases and a Global
// directory.
func IsProject(fs afero.Fs, dir string) bool {
	isFile := func(p string) bool {
		info, err := fs.Stat(p)
		return err == nil && !info.IsDir()
	}
	global, err := afero.DirExists(fs, path.Join(dir, globalDir))
	return err == nil && global &&
		isFile(path.Join(dir, projectDB)) &&
		isFile(path.Join(dir, productionDB))
}

func (s *Service) describe(dir, host string) domain.Repo {
	name := path.Base(dir)
	parent := path.Base(path.Dir(dir))

	return domain.Repo{
		ID:     domain.Hashify(dir),
		Name:   name,
		FSPath: dir,
		Suite:  suiteName,
		Conn: domain.Conn{
			AutoStart:   "YES",
			FilePath:    path.Join(dir, projectDB),
			LogicalName: name + "-" + parent,
			Driver:      driverName,
			Server:      "GGX_" + strings.ToUpper(host),
			User:        defaultUser,
			Password:    defaultPass,
		},
		ConnAux: map[string]any{"ggx_host": host},
	}
}

// stats fills byte size, file and directory counts, and the latest
// modification time of files the database engine does not touch.
func (s *Service) stats(ctx context.Context, repo *domain.Repo) error {
	var latest time.Time
	err := afero.Walk(s.fs, repo.FSPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if NormalizePath(p) != repo.FSPath {
				repo.Directories++
			}
			return nil
		}
		repo.Files++
		repo.Bytes += info.Size()
		if !engineFiles.MatchString(info.Name()) && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if latest.IsZero() {
		latest = time.Unix(0, 0).UTC()
	}
	repo.RepoMod = latest
	return nil
}
