package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gabicam/gabicam/internal/correction"
	"github.com/gabicam/gabicam/internal/device"
	"github.com/gabicam/gabicam/internal/exam"
	syncx "github.com/gabicam/gabicam/internal/sync"
)

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.cache.ClearSession(ctx)
	case "password":
		if len(args) != 2 {
			return errors.New("uso: password <senha-atual> <nova-senha>")
		}
		if err := a.requireSession(ctx); err != nil {
			return err
		}
		if err := a.api.ChangePassword(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Senha alterada com sucesso")
		return nil
	case "exam":
		return a.exam(ctx, args)
	case "capture":
		return a.capture(ctx, args)
	case "correct":
		return a.correct(ctx, args)
	case "save":
		if len(args) != 1 {
			return errors.New("uso: save <examId>")
		}
		if err := a.requireSession(ctx); err != nil {
			return err
		}
		n, err := a.workflow.SaveResults(ctx, args[0])
		if errors.Is(err, correction.ErrNothingToSave) {
			return errors.New("não há provas corrigidas para salvar")
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d resultado(s) salvo(s)\n", n)
		return nil
	case "lastsave":
		if len(args) != 1 {
			return errors.New("uso: lastsave <examId>")
		}
		t, err := a.workflow.LastSave(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]*time.Time{"ultimoSalvamento": t})
	case "results":
		return a.results(ctx, args)
	case "clear":
		return a.clear(ctx, args)
	case "dump":
		entries, err := a.cache.Dump(ctx)
		if err != nil {
			return err
		}
		return printJSON(entries)
	case "agent":
		return a.agent(ctx)
	default:
		return fmt.Errorf("comando desconhecido %q", cmd)
	}
}

func (a *app) requireSession(ctx context.Context) error {
	s, err := a.cache.Session(ctx)
	if err != nil {
		return err
	}
	if !s.LoggedIn() {
		return device.ErrNotLoggedIn
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("uso: register <matricula> <nome> <senha>")
	}
	if err := a.api.Register(ctx, args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Println("Usuário cadastrado com sucesso")
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("uso: login <matricula> <senha>")
	}
	res, err := a.api.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if err := a.cache.SetSession(ctx, device.SessionUser{
		ID:           res.ID,
		Registration: res.Registration,
		Name:         res.Name,
		AccessToken:  res.AccessToken,
	}); err != nil {
		return err
	}
	fmt.Printf("Bem-vindo(a), %s\n", res.Name)
	return nil
}

type examFlags struct {
	name   string
	key    string
	points string
}

func parseExamFlags(name string, args []string) (examFlags, []string, error) {
	var f examFlags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&f.name, "name", "", "nome da prova")
	fs.StringVar(&f.key, "key", "", "gabarito, ex.: A,B,C,D")
	fs.StringVar(&f.points, "points", "", "nota por questão")
	err := fs.Parse(args)
	return f, fs.Args(), err
}

func (f examFlags) answerKey() ([]string, error) {
	if strings.TrimSpace(f.key) == "" {
		return nil, nil
	}
	return correction.ParseAnswerKey(f.key)
}

func (f examFlags) pointsValue() (*float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(f.points, ",", "."))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !exam.ValidPoints(v) {
		return nil, errors.New("a nota por questão deve ser um número maior que zero")
	}
	return &v, nil
}

func (a *app) exam(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("uso: exam list|create|edit|delete|sync")
	}
	switch args[0] {
	case "list":
		exams, err := a.cache.Exams(ctx)
		if err != nil {
			return err
		}
		return printJSON(exams)
	case "create", "edit":
		f, rest, err := parseExamFlags("exam "+args[0], args[1:])
		if err != nil {
			return err
		}
		key, err := f.answerKey()
		if err != nil {
			return err
		}
		pts, err := f.pointsValue()
		if err != nil {
			return err
		}
		if err := a.requireSession(ctx); err != nil {
			return err
		}
		var e device.Exam
		if args[0] == "create" {
			e, err = a.workflow.CreateExam(ctx, f.name, key, pts)
		} else {
			if len(rest) != 1 {
				return errors.New("uso: exam edit [-name n] [-key A,B] [-points p] <id>")
			}
			name := f.name
			if name == "" {
				cur, cerr := a.cache.Exam(ctx, rest[0])
				if cerr != nil {
					return cerr
				}
				name = cur.Name
			}
			e, err = a.workflow.EditExam(ctx, rest[0], name, key, pts)
		}
		if perr := printJSON(e); perr != nil {
			return perr
		}
		if err != nil && e.ID != "" {
			a.log.Warn("saved locally, server sync pending", "exam_id", e.ID, "err", err)
			return nil
		}
		return err
	case "delete":
		if len(args) != 2 {
			return errors.New("uso: exam delete <id>")
		}
		if err := a.workflow.DeleteExam(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("Prova excluída com sucesso")
		return nil
	case "sync":
		n, err := a.syncer.SyncPending(ctx)
		fmt.Printf("%d prova(s) sincronizada(s)\n", n)
		return err
	default:
		return fmt.Errorf("exam: subcomando desconhecido %q", args[0])
	}
}

func (a *app) capture(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("uso: capture list|add|delete")
	}
	switch args[0] {
	case "list":
		folders, err := a.workflow.Folders(ctx)
		if err != nil {
			return err
		}
		return printJSON(folders)
	case "add":
		fs := flag.NewFlagSet("capture add", flag.ContinueOnError)
		examID := fs.String("exam", "", "id da prova")
		name := fs.String("name", "", "nome do aluno")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *examID == "" || fs.NArg() != 1 {
			return errors.New("uso: capture add -exam <id> [-name aluno] <imagem>")
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		c, err := a.workflow.RegisterCapture(ctx, correction.CaptureInput{ExamID: *examID, StudentName: *name, Image: f})
		if err != nil {
			return err
		}
		return printJSON(c)
	case "delete":
		if len(args) < 2 {
			return errors.New("uso: capture delete <id>...")
		}
		n, err := a.workflow.DeleteCaptures(ctx, args[1:]...)
		if err != nil {
			return err
		}
		fmt.Printf("%d captura(s) excluída(s)\n", n)
		return nil
	default:
		return fmt.Errorf("capture: subcomando desconhecido %q", args[0])
	}
}

func (a *app) correct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("correct", flag.ContinueOnError)
	all := fs.Bool("all", false, "corrigir todas as capturas pendentes da prova")
	examID := fs.String("exam", "", "id da prova (com -all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *all {
		if *examID == "" {
			return errors.New("uso: correct -all -exam <id>")
		}
		br, err := a.workflow.CorrectAll(ctx, *examID)
		if err != nil {
			return err
		}
		fmt.Printf("Correção em lote concluída\nCorrigidas: %d\nErros: %d\n", br.Corrected, br.Failed)
		return nil
	}
	if fs.NArg() != 1 {
		return errors.New("uso: correct <captureId>")
	}
	c, err := a.cache.Capture(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	out, err := a.workflow.Correct(ctx, c.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Aluno: %s\nNota: %.1f\nAcertos: %d/%d\n", c.StudentName, out.Score, out.Correct, out.Total)
	return nil
}

func (a *app) results(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	examID := fs.Int64("exam", 0, "id da prova no servidor")
	stats := fs.Bool("stats", false, "estatísticas da prova")
	xlsx := fs.String("xlsx", "", "exportar planilha para o arquivo")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	switch {
	case *xlsx != "":
		if *examID == 0 {
			return errors.New("uso: results -exam <id> -xlsx arquivo")
		}
		b, err := a.api.ExportResults(ctx, *examID)
		if err != nil {
			return err
		}
		return os.WriteFile(*xlsx, b, 0o644)
	case *stats:
		if *examID == 0 {
			return errors.New("uso: results -exam <id> -stats")
		}
		st, err := a.api.Stats(ctx, *examID)
		if err != nil {
			return err
		}
		return printJSON(st)
	default:
		rs, err := a.api.Results(ctx)
		if err != nil {
			return err
		}
		if *examID != 0 {
			filtered := rs[:0]
			for _, r := range rs {
				if r.ExamID == *examID {
					filtered = append(filtered, r)
				}
			}
			rs = filtered
		}
		return printJSON(rs)
	}
}

func (a *app) clear(ctx context.Context, args []string) error {
	what := "all"
	if len(args) > 0 {
		what = args[0]
	}
	var err error
	switch what {
	case "all":
		err = a.cache.ClearAll(ctx)
	case "exams":
		err = a.cache.ClearExams(ctx)
	case "captures":
		err = a.cache.ClearCaptures(ctx)
	default:
		return fmt.Errorf("clear: use all, exams ou captures")
	}
	if err != nil {
		return err
	}
	fmt.Println("Dados removidos")
	return nil
}

// agent pushes pending exams on the configured schedule until interrupted.
func (a *app) agent(ctx context.Context) error {
	sched, err := syncx.NewScheduler(a.syncer, a.cfg.SyncSchedule, a.log)
	if err != nil {
		return fmt.Errorf("sync schedule %q: %w", a.cfg.SyncSchedule, err)
	}
	a.log.Info("agent started", "schedule", a.cfg.SyncSchedule, "api", a.cfg.APIBaseURL)
	sched.RunOnce()
	sched.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	a.log.Info("agent stopped")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
