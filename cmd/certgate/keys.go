package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/config"
	"github.com/bigkaa/certgate/internal/database"
	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/repository"
	"github.com/bigkaa/certgate/internal/service"
)

func keysCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Управление ключами доступа",
	}
	keys.AddCommand(keysCreateCmd())
	keys.AddCommand(keysListCmd())
	keys.AddCommand(keysRevokeCmd())
	return keys
}

func keysCreateCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "create [minutes]",
		Short: "Выпустить ключ (срок в минутах, по умолчанию CG_KEY_DEFAULT_TTL)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ttl time.Duration
			if len(args) == 1 {
				minutes, err := strconv.Atoi(args[0])
				if err != nil || minutes <= 0 {
					return fmt.Errorf("срок должен быть положительным числом минут: %q", args[0])
				}
				ttl = time.Duration(minutes) * time.Minute
			}
			return withKeyService(cmd.Context(), func(ctx context.Context, svc *service.KeyService) error {
				raw, key, err := svc.Create(ctx, ttl, desc)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"Ключ", raw})
				tw.AppendRow(table.Row{"ID", key.ID})
				tw.AppendRow(table.Row{"Описание", key.Description})
				tw.AppendRow(table.Row{"Действует до", key.ExpiresAt.Local().Format(time.DateTime)})
				tw.Render()
				fmt.Println("Сохраните ключ: повторно он не отображается.")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&desc, "description", "d", "", "описание (для кого выдан ключ)")
	return cmd
}

func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список ключей",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(cmd.Context(), func(ctx context.Context, svc *service.KeyService) error {
				items, err := svc.List(ctx)
				if err != nil {
					return err
				}
				printKeys(items, time.Now())
				return nil
			})
		},
	}
}

func keysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Отозвать ключ",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(cmd.Context(), func(ctx context.Context, svc *service.KeyService) error {
				if err := svc.Revoke(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Ключ %s отозван\n", service.MaskKey(args[0]))
				return nil
			})
		},
	}
}

func printKeys(items []*model.APIKey, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Описание", "Статус", "Создан", "Истекает", "Запросов", "Последний запрос"})
	for _, k := range items {
		lastUsed := "-"
		if k.LastUsedAt != nil {
			lastUsed = humanize.RelTime(*k.LastUsedAt, now, "ago", "from now")
		}
		tw.AppendRow(table.Row{
			k.ID,
			k.Description,
			k.Status(now),
			k.CreatedAt.Local().Format(time.DateTime),
			humanize.RelTime(k.ExpiresAt, now, "ago", "from now"),
			humanize.Comma(k.UsageCount),
			lastUsed,
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", "Всего", len(items)})
	tw.Render()
}

// withKeyService подключается к PostgreSQL (с миграциями) и вызывает fn.
func withKeyService(ctx context.Context, fn func(context.Context, *service.KeyService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := config.LoadLogger()
	if err != nil {
		return err
	}
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	ttl, err := config.LoadKeyDefaultTTL()
	if err != nil {
		return err
	}
	if err := database.Migrate(*dbCfg, logger); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, *dbCfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := service.NewKeyService(repository.NewAPIKeyRepository(pool), service.KeyServiceOptions{
		DefaultTTL: ttl,
	}, clock.Real(), logger)
	return fn(ctx, svc)
}
