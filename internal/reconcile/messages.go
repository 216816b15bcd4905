package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
	"github.com/Spok95/wb-materials-bot/internal/domain/users"
	"github.com/Spok95/wb-materials-bot/internal/infra/notify"
)

const failedHeader = "⌛️ Поиск вашего заказа завершён неудачно\n"

func userMessage(out outcome, support []notify.Button) (string, []notify.Button) {
	switch out.status {
	case searches.StatusFound:
		return fmt.Sprintf("✅ Ваш заказ найден и отправлен в производство, ожидайте отправку.\nНомер вашего заказа: #%d", out.task.ID), nil
	case searches.StatusFoundButLinked:
		return fmt.Sprintf("ℹ️ Ваш заказ уже был связан с другим материалом.\n\n"+
			"Свяжитесь с менеджером для уточнения деталей.\n\nНомер вашей заявки: #%d", out.req.ID), support
	case searches.StatusFoundInOtherWarehouse:
		return failedHeader + "Свяжитесь с менеджером, мы примем ваш заказ вручную.", support
	default:
		return failedHeader + "Свяжитесь с менеджером для уточнения деталей.", support
	}
}

var operatorReason = map[searches.Status]string{
	searches.StatusFound:                 "✅ Заказ найден",
	searches.StatusFoundButLinked:        "🚫 Заказ уже связан с другим материалом",
	searches.StatusFoundInOtherWarehouse: "🚫 Заказ не с нашего склада",
	searches.StatusCanceled:              "🚫 Заказ отменён",
	searches.StatusTimeout:               "⌛️ Поиск завершён по таймауту",
}

func userBlock(u *users.User) string {
	if u == nil {
		return "👤 Пользователь: материал удалён\n"
	}
	return fmt.Sprintf("👤 Пользователь:\nID: %d\nИмя: %s\nUsername: %s\n", u.ID, u.FirstName, u.Display())
}

func operatorMessage(out outcome, u *users.User) string {
	var b strings.Builder
	switch out.status {
	case searches.StatusFoundMultiple:
		fmt.Fprintf(&b, "🚫 Найдено заказов: %d. Заявка №%d\n\n", len(out.candidates), out.req.ID)
		b.WriteString(userBlock(u))
		b.WriteString("\nЗаказы:\n")
		b.WriteString(strings.Join(lo.Map(out.candidates, func(o orders.Order, _ int) string { return o.ID }), "\n"))
		fmt.Fprintf(&b, "\n\nИдентификатор материала: %d", out.req.MaterialID)
	case searches.StatusTimeout:
		fmt.Fprintf(&b, "%s:\n\n", operatorReason[out.status])
		b.WriteString(userBlock(u))
		fmt.Fprintf(&b, "\nДанные поиска:\nТип поиска: %s\nФильтры: %s\n\n", out.req.Type, formatFilters(out.req.Filters))
		fmt.Fprintf(&b, "Идентификатор поиска: %d\nИдентификатор материала: %d", out.req.ID, out.req.MaterialID)
	default:
		fmt.Fprintf(&b, "%s:\n\n", operatorReason[out.status])
		b.WriteString(userBlock(u))
		o := out.order
		fmt.Fprintf(&b, "\n📦 Детали заказа Wildberries:\nWB ID: %s\nСборочное задание: %d\nРегион: %s\nАртикул: %s\nДата оформления: %s\n",
			o.ID, out.task.ID, o.RegionName, o.SupplierArticle, o.CreatedAt.Format("02.01.2006 15:04"))
		fmt.Fprintf(&b, "Идентификатор материала: %d", out.req.MaterialID)
	}
	return b.String()
}

func formatFilters(f map[string]string) string {
	keys := lo.Keys(f)
	sort.Strings(keys)
	parts := lo.Map(keys, func(k string, _ int) string { return k + "=" + f[k] })
	return strings.Join(parts, ", ")
}
