package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"budgetbox/internal/models"
	"budgetbox/internal/pagination"
	"budgetbox/internal/testutil"
)

func TestCreateCategory(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)

		category, err := svc.CreateCategory(ctx, user.ID, CreateCategoryInput{Name: "  eating   out ", Type: models.CategoryTypeExpense})
		testutil.AssertNoError(t, err)
		if category.Name != "Eating Out" {
			t.Errorf("expected Eating Out, got %q", category.Name)
		}
		if !category.IsActive || category.IsDefault {
			t.Error("expected an active custom category")
		}
	})

	t.Run("duplicate_same_type", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		testutil.CreateTestCategory(t, db, user.ID, "Gifts", models.CategoryTypeExpense)

		_, err := svc.CreateCategory(ctx, user.ID, CreateCategoryInput{Name: "gifts", Type: models.CategoryTypeExpense})
		testutil.AssertAppError(t, err, "DUPLICATE_CATEGORY")
	})

	t.Run("same_name_other_type", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		testutil.CreateTestCategory(t, db, user.ID, "Gifts", models.CategoryTypeExpense)

		_, err := svc.CreateCategory(ctx, user.ID, CreateCategoryInput{Name: "Gifts", Type: models.CategoryTypeIncome})
		testutil.AssertNoError(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateCategory(ctx, user.ID, CreateCategoryInput{Name: "x", Type: models.CategoryTypeExpense})
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateCategory(ctx, user.ID, CreateCategoryInput{Name: "Things", Type: "asset"})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestListCategories(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestAccount(t, db, user.ID, "0")

	food := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)
	testutil.CreateTestCategory(t, db, user.ID, "Travel", models.CategoryTypeExpense)
	testutil.CreateTestCategory(t, db, user.ID, "Salary", models.CategoryTypeIncome)
	testutil.CreateTestTransaction(t, db, user.ID, account.ID, &food.ID, models.TransactionTypeExpense, "5", time.Now())
	testutil.CreateTestTransaction(t, db, user.ID, account.ID, &food.ID, models.TransactionTypeExpense, "6", time.Now())

	t.Run("filter_type", func(t *testing.T) {
		expense := models.CategoryTypeExpense
		page, err := svc.ListCategories(ctx, user.ID, CategoryFilter{Type: &expense}, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 2 {
			t.Errorf("expected 2 expense categories, got %d", page.TotalItems)
		}
	})

	t.Run("has_transactions", func(t *testing.T) {
		yes := true
		page, err := svc.ListCategories(ctx, user.ID, CategoryFilter{HasTransactions: &yes}, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 1 {
			t.Fatalf("expected 1 used category, got %d", page.TotalItems)
		}
		if page.Data[0].TransactionCount != 2 {
			t.Errorf("expected transaction_count 2, got %d", page.Data[0].TransactionCount)
		}
	})

	t.Run("search", func(t *testing.T) {
		page, err := svc.ListCategories(ctx, user.ID, CategoryFilter{Search: "trav"}, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 1 || page.Data[0].Name != "Travel" {
			t.Errorf("expected only Travel, got %d results", page.TotalItems)
		}
	})
}

func TestUpdateCategory(t *testing.T) {
	ctx := context.Background()

	t.Run("rename", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)

		updated, err := svc.UpdateCategory(ctx, user.ID, category.ID, CategoryUpdateFields{Name: strPtr("groceries")})
		testutil.AssertNoError(t, err)
		if updated.Name != "Groceries" {
			t.Errorf("expected Groceries, got %s", updated.Name)
		}
	})

	t.Run("type_locked_while_used", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID, "0")
		category := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)
		testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "5", time.Now())

		income := models.CategoryTypeIncome
		_, err := svc.UpdateCategory(ctx, user.ID, category.ID, CategoryUpdateFields{Type: &income})
		testutil.AssertAppError(t, err, "CATEGORY_IN_USE")
	})

	t.Run("deactivate", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)

		inactive := false
		updated, err := svc.UpdateCategory(ctx, user.ID, category.ID, CategoryUpdateFields{IsActive: &inactive})
		testutil.AssertNoError(t, err)
		if updated.IsActive {
			t.Error("expected category to be inactive")
		}
	})
}

func TestDeleteCategory(t *testing.T) {
	ctx := context.Background()

	t.Run("in_use_until_reassigned", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID, "0")
		source := testutil.CreateTestCategory(t, db, user.ID, "Takeaway", models.CategoryTypeExpense)
		target := testutil.CreateTestCategory(t, db, user.ID, "Eating Out", models.CategoryTypeExpense)
		for i := 0; i < 5; i++ {
			testutil.CreateTestTransaction(t, db, user.ID, account.ID, &source.ID, models.TransactionTypeExpense, "12", time.Now())
		}

		err := svc.DeleteCategory(ctx, user.ID, source.ID)
		testutil.AssertAppError(t, err, "CATEGORY_IN_USE")

		result, err := svc.ReassignTransactions(ctx, user.ID, source.ID, target.ID)
		testutil.AssertNoError(t, err)
		if result.Reassigned != 5 {
			t.Errorf("expected 5 reassigned, got %d", result.Reassigned)
		}
		if !result.SourceDeactivated {
			t.Error("expected source to be deactivated")
		}

		testutil.AssertNoError(t, svc.DeleteCategory(ctx, user.ID, source.ID))
		_, err = svc.GetCategoryByID(ctx, user.ID, source.ID)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")

		moved, err := svc.GetCategoryByID(ctx, user.ID, target.ID)
		testutil.AssertNoError(t, err)
		if moved.TransactionCount != 5 {
			t.Errorf("expected target to hold 5 transactions, got %d", moved.TransactionCount)
		}
	})

	t.Run("default_category", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)
		db.Model(&models.Category{}).Where("id = ?", category.ID).Update("is_default", true)

		err := svc.DeleteCategory(ctx, user.ID, category.ID)
		testutil.AssertAppError(t, err, "DEFAULT_CATEGORY")
	})

	t.Run("active_budget", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)
		today := models.DateOnly(time.Now())
		testutil.CreateTestBudget(t, db, user.ID, category.ID, "200", models.BudgetPeriodMonthly, today, today.AddDate(0, 1, -1))

		err := svc.DeleteCategory(ctx, user.ID, category.ID)
		testutil.AssertAppError(t, err, "CATEGORY_IN_USE")
	})
}

func TestCategoryUsage(t *testing.T) {
	ctx := context.Background()
	now := testutil.Date(2026, time.April, 15)
	db := testutil.SetupTestDB(t)
	svc := &categoryService{db: db, now: fixedClock(now)}
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestAccount(t, db, user.ID, "0")
	category := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)

	testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "10", testutil.Date(2026, time.March, 20))
	testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "20", testutil.Date(2026, time.April, 2))
	testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "30", testutil.Date(2026, time.April, 14))
	testutil.CreateTestTransaction(t, db, user.ID, account.ID, &category.ID, models.TransactionTypeExpense, "500", testutil.Date(2026, time.January, 1))

	usage, err := svc.GetCategoryUsage(ctx, user.ID, category.ID, 30)
	testutil.AssertNoError(t, err)

	if usage.PeriodStart != "2026-03-17" {
		t.Errorf("unexpected period start %s", usage.PeriodStart)
	}
	testutil.AssertMoney(t, "60", usage.TotalAmount)
	testutil.AssertMoney(t, "20", usage.AverageAmount)
	if usage.TransactionCount != 3 {
		t.Errorf("expected 3 transactions, got %d", usage.TransactionCount)
	}
	if len(usage.MonthlyBreakdown) != 2 || usage.MonthlyBreakdown[0].Month != "2026-03" {
		t.Errorf("unexpected monthly breakdown %+v", usage.MonthlyBreakdown)
	}
	if len(usage.RecentTransactions) != 3 {
		t.Errorf("expected 3 recent transactions, got %d", len(usage.RecentTransactions))
	}
}

func TestSetDefaultCategories(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db, nil)
	user := testutil.CreateTestUser(t, db)
	testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)

	created, err := svc.SetDefaultCategories(ctx, user.ID)
	testutil.AssertNoError(t, err)
	if len(created) != len(defaultCategories)-1 {
		t.Errorf("expected %d created, got %d", len(defaultCategories)-1, len(created))
	}
	for _, c := range created {
		if c.Name == "Food" {
			t.Error("expected existing Food category to be skipped")
		}
		if !c.IsDefault {
			t.Errorf("expected %s to be marked default", c.Name)
		}
	}

	_, err = svc.SetDefaultCategories(ctx, user.ID)
	testutil.AssertAppError(t, err, "DEFAULTS_EXIST")
}

func TestReassignTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("type_mismatch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		source := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)
		target := testutil.CreateTestCategory(t, db, user.ID, "Salary", models.CategoryTypeIncome)

		_, err := svc.ReassignTransactions(ctx, user.ID, source.ID, target.ID)
		testutil.AssertAppError(t, err, "CATEGORY_TYPE_MISMATCH")
	})

	t.Run("same_category", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		source := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)

		_, err := svc.ReassignTransactions(ctx, user.ID, source.ID, source.ID)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("inactive_target", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db, nil)
		user := testutil.CreateTestUser(t, db)
		source := testutil.CreateTestCategory(t, db, user.ID, "Food", models.CategoryTypeExpense)
		target := testutil.CreateTestCategory(t, db, user.ID, "Dining", models.CategoryTypeExpense)
		db.Model(&models.Category{}).Where("id = ?", target.ID).Update("is_active", false)

		_, err := svc.ReassignTransactions(ctx, user.ID, source.ID, target.ID)
		testutil.AssertAppError(t, err, "CATEGORY_INACTIVE")
	})
}

func TestDeleteCategoryRacesWithTransaction(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		db := testutil.SetupTestDB(t)
		categories := NewCategoryService(db, nil)
		transactions := NewTransactionService(db, nil)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID, "100")
		category := testutil.CreateTestCategory(t, db, user.ID, "Hobbies", models.CategoryTypeExpense)

		var wg sync.WaitGroup
		var deleteErr, createErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			deleteErr = categories.DeleteCategory(ctx, user.ID, category.ID)
		}()
		go func() {
			defer wg.Done()
			_, createErr = transactions.CreateTransaction(ctx, user.ID, CreateTransactionInput{
				AccountID:   account.ID,
				CategoryID:  &category.ID,
				Description: "Paint set",
				Amount:      testutil.Money("15"),
				Type:        models.TransactionTypeExpense,
				Date:        time.Now(),
			})
		}()
		wg.Wait()

		var orphans int64
		testutil.AssertNoError(t, db.Model(&models.Transaction{}).
			Joins("JOIN categories ON categories.id = transactions.category_id").
			Where("categories.deleted_at IS NOT NULL").
			Count(&orphans).Error)
		if orphans != 0 {
			t.Fatalf("found %d transactions on a deleted category", orphans)
		}

		switch {
		case createErr == nil:
			testutil.AssertAppError(t, deleteErr, "CATEGORY_IN_USE")
		case deleteErr == nil:
			testutil.AssertAppError(t, createErr, "CATEGORY_NOT_FOUND")
		default:
			t.Fatalf("both operations failed: %v / %v", deleteErr, createErr)
		}
	}
}
